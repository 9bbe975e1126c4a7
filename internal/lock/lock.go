// Package lock provides keyed mutual exclusion for lobbies and users.
package lock

import (
	"context"
	"fmt"
)

// Locker hands out exclusive ownership of a key.
type Locker interface {
	// Lock blocks until the key is owned or ctx ends. The returned function
	// releases the key and is safe to call once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserKey is the lock key guarding a user's lobby affiliation.
func UserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// LobbyKey is the lock key guarding a lobby's occupancy and creator.
func LobbyKey(lobbyID uint) string {
	return fmt.Sprintf("lobby:%d", lobbyID)
}

// Acquire locks keys in the given order and returns a function releasing
// them in reverse. On failure every key taken so far is released.
// Callers must pass user keys before lobby keys.
func Acquire(ctx context.Context, l Locker, keys ...string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		unlocks = append(unlocks, unlock)
	}

	return release, nil
}
