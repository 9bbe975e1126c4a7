package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// RegisterUser / Authenticate Tests
// =============================================================================

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	user, err := env.svc.RegisterUser(ctx, " alice ", "Alice@Example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsOnline)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	player, err := env.svc.GetPlayer(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, player.InLobby())
	assert.False(t, player.IsReady)
}

func TestRegisterUser_Validation(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"missing username", "", "a@example.com", "password1"},
		{"long username", strings.Repeat("u", 51), "a@example.com", "password1"},
		{"invalid email", "alice", "not-an-email", "password1"},
		{"short password", "alice", "a@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.RegisterUser(ctx, tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestRegisterUser_Duplicates(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.svc.RegisterUser(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	_, err = env.svc.RegisterUser(ctx, "alice", "other@example.com", "password1")
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = env.svc.RegisterUser(ctx, "bob", "alice@example.com", "password1")
	assert.ErrorIs(t, err, ErrConstraintViolation)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	registered, err := env.svc.RegisterUser(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	user, err := env.svc.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	user, err = env.svc.Authenticate(ctx, "alice@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = env.svc.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Authenticate(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.db.Model(registered).Update("is_active", false).Error)
	_, err = env.svc.Authenticate(ctx, "alice", "password1")
	assert.ErrorIs(t, err, ErrUserNotEligible)
}

// =============================================================================
// DeleteUser Tests
// =============================================================================

func TestDeleteUser_CreatorCascades(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	lobby, game, users := startedLobby(t, env, 2)

	require.NoError(t, env.svc.DeleteUser(ctx, users[0].ID))

	_, err := env.svc.GetUser(ctx, users[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.GetLobby(ctx, lobby.ID)
	assert.ErrorIs(t, err, ErrNotFound, "created lobbies go with their creator")
	_, err = env.svc.GetGame(ctx, game.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, env.player(t, users[1].ID).InLobby())
	assert.Contains(t, env.events.types(), EventLobbyDeleted)
	env.assertConsistent(t)
}

func TestDeleteUser_MemberLeavesLobby(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	lobby, game, users := startedLobby(t, env, 3)

	_, err := env.svc.FinishGame(ctx, game.ID, uintPtr(users[2].ID))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteUser(ctx, users[2].ID))

	current := env.lobby(t, lobby.ID)
	assert.Equal(t, 2, current.CurrentPlayers)
	assert.True(t, current.IsActive)

	finished, err := env.svc.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Nil(t, finished.WinnerID, "winner is cleared")
	assert.Len(t, finished.Participants, 2)
	env.assertConsistent(t)
}

func TestDeleteUser_Unknown(t *testing.T) {
	env := newTestEnv(t, Config{})

	assert.ErrorIs(t, env.svc.DeleteUser(context.Background(), 5), ErrNotFound)
}

// hookedLocker records the keys it grants and runs a one-off hook right
// before a chosen key is locked.
type hookedLocker struct {
	lock.Locker

	mu     sync.Mutex
	before map[string]func()
	keys   []string
}

func newHookedLocker() *hookedLocker {
	return &hookedLocker{Locker: lock.NewLocalLocker(), before: make(map[string]func())}
}

func (l *hookedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	hook := l.before[key]
	delete(l.before, key)
	l.mu.Unlock()
	if hook != nil {
		hook()
	}

	unlock, err := l.Locker.Lock(ctx, key)
	if err == nil {
		l.mu.Lock()
		l.keys = append(l.keys, key)
		l.mu.Unlock()
	}
	return unlock, err
}

func (l *hookedLocker) taken() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func (l *hookedLocker) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = nil
}

// staleCreatorStore answers the first stale lookups of created lobbies
// outside transactions with an empty list.
type staleCreatorStore struct {
	store.Store

	mu    sync.Mutex
	stale int
	calls int
}

func (s *staleCreatorStore) ListLobbyIDsByCreator(ctx context.Context, creatorID uint) ([]uint, error) {
	s.mu.Lock()
	s.calls++
	stale := s.calls <= s.stale
	s.mu.Unlock()
	if stale {
		return nil, nil
	}
	return s.Store.ListLobbyIDsByCreator(ctx, creatorID)
}

// abandonedLobby creates a lobby whose creator then leaves it, so the user
// owns a lobby it is no longer a member of.
func abandonedLobby(t *testing.T, env *testEnv, creatorID uint) uint {
	t.Helper()
	ctx := context.Background()
	lobby, err := env.svc.CreateLobby(ctx, creatorID, "abandoned", 2)
	require.NoError(t, err)
	require.NoError(t, env.svc.LeaveLobby(ctx, creatorID))
	return lobby.ID
}

func TestDeleteUser_LocksLobbyJoinedJustBefore(t *testing.T) {
	env := newTestEnv(t, Config{})
	locker := newHookedLocker()
	svc := New(env.store, locker, Config{}, WithPublisher(env.events))
	ctx := context.Background()
	users := env.seedUsers(t, 2)

	lobby, err := svc.CreateLobby(ctx, users[0].ID, "lobby", 3)
	require.NoError(t, err)

	// The join commits after DeleteUser starts but before it owns the user.
	locker.before[lock.UserKey(users[1].ID)] = func() {
		_, err := svc.JoinLobby(ctx, users[1].ID, lobby.ID)
		require.NoError(t, err)
		locker.reset()
	}

	require.NoError(t, svc.DeleteUser(ctx, users[1].ID))

	assert.Equal(t, []string{lock.UserKey(users[1].ID), lock.LobbyKey(lobby.ID)}, locker.taken())
	assert.Equal(t, 1, env.lobby(t, lobby.ID).CurrentPlayers)
	assert.Contains(t, env.events.types(), EventPlayerLeft)
	env.assertConsistent(t)
}

func TestDeleteUser_RetriesWhenCreatedLobbiesChange(t *testing.T) {
	env := newTestEnv(t, Config{})
	users := env.seedUsers(t, 1)
	lobbyID := abandonedLobby(t, env, users[0].ID)

	stale := &staleCreatorStore{Store: env.store, stale: 1}
	locker := newHookedLocker()
	svc := New(stale, locker, Config{})

	require.NoError(t, svc.DeleteUser(context.Background(), users[0].ID))

	assert.Equal(t, 2, stale.calls)
	assert.Contains(t, locker.taken(), lock.LobbyKey(lobbyID))
	_, err := env.store.FindLobbyByID(context.Background(), lobbyID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUser_GivesUpWhenLockSetKeepsChanging(t *testing.T) {
	env := newTestEnv(t, Config{})
	users := env.seedUsers(t, 1)
	lobbyID := abandonedLobby(t, env, users[0].ID)

	stale := &staleCreatorStore{Store: env.store, stale: deleteUserAttempts}
	svc := New(stale, lock.NewLocalLocker(), Config{})

	err := svc.DeleteUser(context.Background(), users[0].ID)

	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, deleteUserAttempts, stale.calls)
	assert.Equal(t, users[0].ID, env.lobby(t, lobbyID).CreatorID, "nothing was deleted")
	_, err = env.store.FindUserByID(context.Background(), users[0].ID)
	assert.NoError(t, err)
}
