package session

import (
	"errors"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
)

// Persisted is the whitelist of session fields that survive a restart.
// The token version is deliberately absent.
type Persisted struct {
	CurrentUser     *User `json:"currentUser"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

// Persister stores the whitelisted session fields.
type Persister interface {
	Load() (*Persisted, error)
	Save(*Persisted) error
	Clear() error
}

// FilePersister keeps the session in a JSON file readable only by the owner.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load returns nil, nil when nothing was persisted.
func (f *FilePersister) Load() (*Persisted, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (f *FilePersister) Save(p *Persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

func (f *FilePersister) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
