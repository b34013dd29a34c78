package devserver

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Department groups users.
type Department struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// User is an account. TokenVersion is bumped whenever every existing
// session of the user must stop working.
type User struct {
	ID           string      `gorm:"primaryKey" json:"id"`
	Name         string      `gorm:"not null" json:"name"`
	Email        string      `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string      `gorm:"not null" json:"-"`
	Role         string      `gorm:"not null;default:User" json:"role"`
	DepartmentID *string     `json:"-"`
	Department   *Department `json:"department,omitempty"`
	TokenVersion int         `gorm:"not null;default:0" json:"tokenVersion"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"-"`
}

// Notification is addressed to one user.
type Notification struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	UserID             string    `gorm:"index;not null" json:"-"`
	Type               string    `gorm:"not null" json:"type"`
	Message            string    `gorm:"not null" json:"message"`
	IsRead             bool      `gorm:"index;not null;default:false" json:"isRead"`
	LinkedDocument     string    `json:"linkedDocument,omitempty"`
	LinkedDocumentType string    `json:"linkedDocumentType,omitempty"`
	CreatedAt          time.Time `gorm:"index" json:"createdAt"`
}

func (d *Department) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
