package service

import (
	"context"
	"log"
	"time"

	"gamelobby/backend/internal/store"
)

// MarkOnline flags userID as connected and refreshes its last-seen time.
func (s *Service) MarkOnline(ctx context.Context, userID uint) error {
	return s.setPresence(ctx, "mark_online", userID, true, true)
}

// MarkOffline flags userID as disconnected. Lobby membership is untouched:
// whether a disconnect should also leave the lobby is up to the caller.
func (s *Service) MarkOffline(ctx context.Context, userID uint) error {
	return s.setPresence(ctx, "mark_offline", userID, false, true)
}

// Heartbeat keeps userID online without notifying its lobby.
func (s *Service) Heartbeat(ctx context.Context, userID uint) error {
	return s.setPresence(ctx, "heartbeat", userID, true, false)
}

func (s *Service) setPresence(ctx context.Context, operation string, userID uint, online, notify bool) (err error) {
	defer func(start time.Time) { s.observe(operation, start, err) }(time.Now())

	updated, err := s.store.UpdatePresence(ctx, userID, online, s.timestamp())
	if err != nil {
		return err
	}
	if !updated {
		return notFound(store.ErrNotFound, "user", userID)
	}
	if !notify {
		return nil
	}

	player, err := s.store.FindPlayerByUserID(ctx, userID)
	if err != nil || !player.InLobby() {
		return nil
	}
	s.publish(event{*player.LobbyID, EventPlayerPresence, map[string]any{
		"lobby_id":  *player.LobbyID,
		"user_id":   userID,
		"is_online": online,
	}})
	return nil
}

// SweepStale marks users offline whose last heartbeat is older than ttl.
func (s *Service) SweepStale(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.store.MarkStaleOffline(ctx, s.timestamp().Add(-ttl))
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepStale(ctx, ttl)
			if err != nil {
				log.Printf("presence sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("presence sweep marked %d users offline", n)
			}
		}
	}
}
