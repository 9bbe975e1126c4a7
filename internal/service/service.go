// Package service implements the lobby membership engine, the game
// lifecycle controller and the presence tracker on top of the entity store.
//
// Every operation that reads and then writes a lobby's occupancy, a
// player's lobby reference or a lobby's creator holds the lobby lock (and,
// for user-initiated operations, the user lock first) and applies all of
// its writes in one store transaction. Conditional updates in the store
// keep the invariants even when the locks are not shared between instances.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gamelobby/backend/internal/lock"
	"gamelobby/backend/internal/models"
	"gamelobby/backend/internal/store"
)

const (
	defaultMinPlayersToStart = 2
	defaultMaxLobbySize      = 16
	maxLobbyNameLength       = 100
)

// Event types published to lobby subscribers after a successful commit.
const (
	EventLobbyCreated       = "lobby.created"
	EventLobbyDeactivated   = "lobby.deactivated"
	EventLobbyDeleted       = "lobby.deleted"
	EventCreatorTransferred = "lobby.creator_transferred"
	EventPlayerJoined       = "player.joined"
	EventPlayerLeft         = "player.left"
	EventPlayerReady        = "player.ready"
	EventPlayerPresence     = "player.presence"
	EventGameStarted        = "game.started"
	EventTurnAdvanced       = "game.turn_advanced"
	EventGameFinished       = "game.finished"
)

// Config holds the tunable rules of the engine.
type Config struct {
	// MinPlayersToStart is the smallest member count StartGame accepts.
	MinPlayersToStart int
	// MaxLobbySize caps max_players on lobby creation.
	MaxLobbySize int
	// RequireOnlineToJoin makes being online part of lobby eligibility.
	RequireOnlineToJoin bool
}

// Publisher receives lobby events once their transaction has committed.
type Publisher interface {
	Publish(lobbyID uint, eventType string, payload any)
}

// Recorder receives the outcome of every operation.
type Recorder interface {
	Observe(operation, result string, elapsed time.Duration)
}

type nopPublisher struct{}

func (nopPublisher) Publish(uint, string, any) {}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string, time.Duration) {}

// Service is the entry point for all lobby, game and presence operations.
type Service struct {
	store    store.Store
	locker   lock.Locker
	events   Publisher
	recorder Recorder
	cfg      Config
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sends committed events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st store.Store, locker lock.Locker, cfg Config, opts ...Option) *Service {
	if cfg.MinPlayersToStart <= 0 {
		cfg.MinPlayersToStart = defaultMinPlayersToStart
	}
	if cfg.MaxLobbySize <= 0 {
		cfg.MaxLobbySize = defaultMaxLobbySize
	}

	s := &Service{
		store:    st,
		locker:   locker,
		events:   nopPublisher{},
		recorder: nopRecorder{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// observe records the outcome of an operation started at start.
func (s *Service) observe(operation string, start time.Time, err error) {
	s.recorder.Observe(operation, resultLabel(err), time.Since(start))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case KindOf(err) != "":
		return strings.ToLower(string(KindOf(err)))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

type event struct {
	lobbyID   uint
	eventType string
	payload   map[string]any
}

func (s *Service) publish(events ...event) {
	for _, e := range events {
		s.events.Publish(e.lobbyID, e.eventType, e.payload)
	}
}

// checkEligible applies the presence-based rules for entering a lobby.
func (s *Service) checkEligible(user *models.User) error {
	if !user.IsActive {
		return &Error{Kind: KindUserNotEligible, Message: "user is inactive", UserID: user.ID}
	}
	if s.cfg.RequireOnlineToJoin && !user.IsOnline {
		return &Error{Kind: KindUserNotEligible, Message: "user is offline", UserID: user.ID}
	}
	return nil
}
