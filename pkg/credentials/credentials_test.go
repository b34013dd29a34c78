package credentials

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials"))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSaveAndLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "credentials"))

	in := FromHTTPCookies("http://localhost:4000/api", []*http.Cookie{
		{Name: "access_token", Value: "a.b.c"},
		{Name: "refresh_token", Value: "d.e.f"},
	})
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.BaseURL, out.BaseURL)
	assert.Equal(t, in.Cookies, out.Cookies)

	cookies := out.HTTPCookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, NewStore(path).Save(&Credentials{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials"))
	require.NoError(t, store.Save(&Credentials{}))

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}
