package devserver

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Demo account created by Seed.
const (
	DemoEmail    = "demo@taskmgr.local"
	DemoPassword = "password123"
)

var linkedTypes = []string{"Task", "RoutineTask", "AssignedTask", "Material"}

// SeedOptions sizes the fake data set.
type SeedOptions struct {
	Users         int
	Notifications int
}

// Seed creates a department, the demo user, a few fake colleagues and
// fake notifications for the demo user. It returns the demo user.
func Seed(s *Store, opts SeedOptions) (*User, error) {
	_ = gofakeit.Seed(time.Now().UnixNano())

	dept, err := s.CreateDepartment("Engineering")
	if err != nil {
		return nil, fmt.Errorf("seed department: %w", err)
	}

	demo, err := s.CreateUser("Demo User", DemoEmail, DemoPassword, "Manager", dept)
	if err != nil {
		return nil, fmt.Errorf("seed demo user: %w", err)
	}

	for i := 0; i < opts.Users; i++ {
		if _, err := s.CreateUser(gofakeit.Name(), gofakeit.Email(), gofakeit.Password(true, true, true, false, false, 12), "User", dept); err != nil {
			return nil, fmt.Errorf("seed user: %w", err)
		}
	}

	now := time.Now()
	for i := 0; i < opts.Notifications; i++ {
		n := FakeNotification(demo.ID)
		n.IsRead = gofakeit.Bool()
		n.CreatedAt = gofakeit.DateRange(now.AddDate(0, 0, -14), now)
		if err := s.CreateNotification(n); err != nil {
			return nil, fmt.Errorf("seed notification: %w", err)
		}
	}
	return demo, nil
}

// FakeNotification returns an unsaved, unread notification for userID that
// links to a random document.
func FakeNotification(userID string) *Notification {
	docType := gofakeit.RandomString(linkedTypes)
	return &Notification{
		UserID:             userID,
		Type:               docType,
		Message:            fmt.Sprintf("%s: %s", docType, gofakeit.HipsterSentence()),
		LinkedDocument:     gofakeit.UUID(),
		LinkedDocumentType: docType,
	}
}
