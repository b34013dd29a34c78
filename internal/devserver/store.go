package devserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Store is the persistence layer of the reference backend.
type Store struct {
	db *gorm.DB
}

// MemoryDSN returns a private in-memory database name.
func MemoryDSN() string {
	return fmt.Sprintf("file:taskmgr-%s?mode=memory&cache=shared", uuid.NewString())
}

// OpenStore connects to sqlite at dsn and migrates the schema.
func OpenStore(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps an
	// in-memory database alive for the life of the store.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Department{}, &User{}, &Notification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDepartment adds a department.
func (s *Store) CreateDepartment(name string) (*Department, error) {
	d := &Department{Name: name}
	if err := s.db.Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// CreateUser adds a user with a bcrypt-hashed password.
func (s *Store) CreateUser(name, email, password, role string, dept *Department) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		Role:         role,
	}
	if dept != nil {
		u.DepartmentID = &dept.ID
	}
	if err := s.db.Create(u).Error; err != nil {
		return nil, err
	}
	u.Department = dept
	return u, nil
}

// Authenticate returns the user owning email if password matches.
func (s *Store) Authenticate(email, password string) (*User, error) {
	var u User
	err := s.db.Preload("Department").Where("email = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// UserByID loads a user.
func (s *Store) UserByID(id string) (*User, error) {
	var u User
	err := s.db.Preload("Department").First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return &u, err
}

// ChangePassword sets a new password and bumps the token version, which
// invalidates every session of the user. It returns the new version.
func (s *Store) ChangePassword(userID, current, next string) (int, error) {
	var version int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var u User
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		version = u.TokenVersion + 1
		return tx.Model(&u).Updates(map[string]interface{}{
			"password_hash": string(hash),
			"token_version": version,
		}).Error
	})
	return version, err
}

// BumpTokenVersion revokes every session of the user.
func (s *Store) BumpTokenVersion(userID string) (int, error) {
	res := s.db.Model(&User{}).Where("id = ?", userID).
		Update("token_version", gorm.Expr("token_version + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	u, err := s.UserByID(userID)
	if err != nil {
		return 0, err
	}
	return u.TokenVersion, nil
}

// CreateNotification stores n.
func (s *Store) CreateNotification(n *Notification) error {
	return s.db.Create(n).Error
}

// ListNotifications returns one page, newest first, and the total count.
func (s *Store) ListNotifications(userID string, page, limit int, unreadOnly bool) ([]Notification, int64, error) {
	q := s.db.Model(&Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []Notification
	err := q.Order("created_at DESC").Order("id").
		Offset((page - 1) * limit).Limit(limit).
		Find(&list).Error
	return list, total, err
}

// Counts returns the unread and total counts of the user.
func (s *Store) Counts(userID string) (unread, total int64, err error) {
	if err = s.db.Model(&Notification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return
	}
	err = s.db.Model(&Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&unread).Error
	return
}

// MarkRead marks the given notifications of the user read.
func (s *Store) MarkRead(userID string, ids []string) (int64, error) {
	res := s.db.Model(&Notification{}).
		Where("user_id = ? AND id IN ? AND is_read = ?", userID, ids, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkAllRead marks every notification of the user read.
func (s *Store) MarkAllRead(userID string) (int64, error) {
	res := s.db.Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
