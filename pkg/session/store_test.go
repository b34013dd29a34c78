package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	loginResult *LoginResult
	loginErr    error
	logoutMsg   string
	logoutErr   error
	logoutCalls int
}

func (f *fakeAuth) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeAuth) Logout(ctx context.Context) (string, error) {
	f.logoutCalls++
	return f.logoutMsg, f.logoutErr
}

func newAuth() *fakeAuth {
	return &fakeAuth{
		loginResult: &LoginResult{
			User: User{
				ID:         "u1",
				Name:       "Ada",
				Role:       "Manager",
				Department: &DepartmentRef{ID: "d1", Name: "Ops"},
			},
			TokenVersion: 3,
			Message:      "Login successful",
		},
		logoutMsg: "Logged out",
	}
}

func assertCleared(t *testing.T, st State) {
	t.Helper()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.CurrentUser)
	assert.Equal(t, 0, st.TokenVersion)
}

func TestLoginSetsStateFromServer(t *testing.T) {
	var messages []string
	s := NewStore(newAuth(), WithMessenger(func(m string) { messages = append(messages, m) }))

	require.NoError(t, s.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"}))

	st := s.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, 3, st.TokenVersion)
	require.NotNil(t, st.CurrentUser)
	assert.Equal(t, "u1", st.CurrentUser.ID)
	assert.Equal(t, "d1", st.CurrentUser.Department.ID)
	assert.Equal(t, []string{"Login successful"}, messages)
}

func TestLoginFailureStaysUnauthenticated(t *testing.T) {
	auth := newAuth()
	auth.loginErr = errors.New("Invalid email or password")
	s := NewStore(auth)

	err := s.Login(context.Background(), Credentials{Email: "x", Password: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")
	assertCleared(t, s.Snapshot())
}

func TestLoginThenLogoutClearsState(t *testing.T) {
	for _, logoutErr := range []error{nil, errors.New("network down")} {
		auth := newAuth()
		auth.logoutErr = logoutErr
		s := NewStore(auth)

		require.NoError(t, s.Login(context.Background(), Credentials{}))
		require.NoError(t, s.Logout(context.Background(), ""))

		assertCleared(t, s.Snapshot())
		assert.Equal(t, 1, auth.logoutCalls)
	}
}

func TestLogoutReasonWinsOverServerMessage(t *testing.T) {
	var messages []string
	s := NewStore(newAuth(), WithMessenger(func(m string) { messages = append(messages, m) }))
	require.NoError(t, s.Login(context.Background(), Credentials{}))
	messages = nil

	require.NoError(t, s.Logout(context.Background(), "Password changed"))
	assert.Equal(t, []string{"Password changed"}, messages)
}

func TestLogoutWhenUnauthenticatedSkipsServer(t *testing.T) {
	auth := newAuth()
	s := NewStore(auth)

	require.NoError(t, s.Logout(context.Background(), ""))
	assert.Equal(t, 0, auth.logoutCalls)
	assertCleared(t, s.Snapshot())
}

func TestForceRevoke(t *testing.T) {
	var messages []string
	var states []State
	s := NewStore(newAuth(), WithMessenger(func(m string) { messages = append(messages, m) }))
	s.Subscribe(func(st State) { states = append(states, st) })

	require.NoError(t, s.Login(context.Background(), Credentials{}))
	messages = nil

	s.ForceRevoke("Security session revoked. Please login again.")
	s.ForceRevoke("second call is a no-op")

	assertCleared(t, s.Snapshot())
	assert.Equal(t, []string{"Security session revoked. Please login again."}, messages)
	require.Len(t, states, 2)
	assert.True(t, states[0].IsAuthenticated)
	assertCleared(t, states[1])
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := NewStore(newAuth())
	calls := 0
	unsubscribe := s.Subscribe(func(State) { calls++ })

	require.NoError(t, s.Login(context.Background(), Credentials{}))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Logout(context.Background(), ""))

	assert.Equal(t, 1, calls)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(newAuth())
	require.NoError(t, s.Login(context.Background(), Credentials{}))

	st := s.Snapshot()
	st.CurrentUser.Role = "Admin"
	st.CurrentUser.Department.Name = "Changed"

	assert.Equal(t, "Manager", s.CurrentUser().Role)
	assert.Equal(t, "Ops", s.CurrentUser().Department.Name)
}

func TestPersistenceWhitelistsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewStore(newAuth(), WithPersister(NewFilePersister(path)))
	require.NoError(t, s.Login(context.Background(), Credentials{Password: "secret-pw"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"isAuthenticated": true`)
	assert.Contains(t, string(data), `"u1"`)
	assert.NotContains(t, string(data), "tokenVersion")
	assert.NotContains(t, string(data), "TokenVersion")
	assert.NotContains(t, string(data), "secret-pw")
}

func TestRestoreResetsTokenVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	first := NewStore(newAuth(), WithPersister(NewFilePersister(path)))
	require.NoError(t, first.Login(context.Background(), Credentials{}))
	require.Equal(t, 3, first.TokenVersion())

	second := NewStore(newAuth(), WithPersister(NewFilePersister(path)))
	notified := false
	second.Subscribe(func(st State) { notified = st.IsAuthenticated })
	require.NoError(t, second.Restore())

	st := second.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "u1", st.CurrentUser.ID)
	assert.Equal(t, 0, st.TokenVersion)
	assert.True(t, notified)
}

func TestLogoutClearsPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewStore(newAuth(), WithPersister(NewFilePersister(path)))
	require.NoError(t, s.Login(context.Background(), Credentials{}))
	require.NoError(t, s.Logout(context.Background(), ""))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	restored := NewStore(newAuth(), WithPersister(NewFilePersister(path)))
	require.NoError(t, restored.Restore())
	assertCleared(t, restored.Snapshot())
}

func TestLoginWithoutAuthenticator(t *testing.T) {
	s := NewStore(nil)
	assert.Error(t, s.Login(context.Background(), Credentials{}))
}
