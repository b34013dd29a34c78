package credentials

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
)

// Cookie is the part of an HTTP cookie a jar hands back for a URL.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Credentials is the on-disk snapshot of the session cookies the backend
// set for BaseURL. It is the CLI's stand-in for a browser cookie store.
type Credentials struct {
	BaseURL string    `json:"base_url"`
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at"`
}

// FromHTTPCookies snapshots cookies returned by a jar for baseURL.
func FromHTTPCookies(baseURL string, cookies []*http.Cookie) *Credentials {
	creds := &Credentials{BaseURL: baseURL, SavedAt: time.Now()}
	for _, c := range cookies {
		creds.Cookies = append(creds.Cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return creds
}

// HTTPCookies converts the snapshot back into cookies for a jar.
func (c *Credentials) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(c.Cookies))
	for _, ck := range c.Cookies {
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	return out
}

// Store reads and writes the credentials file.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load loads credentials from disk
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Credentials don't exist yet
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// Save saves credentials to disk
func (s *Store) Save(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	// Write with restricted permissions (owner read/write only)
	return os.WriteFile(s.path, data, 0600)
}

// Delete deletes credentials from disk. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
