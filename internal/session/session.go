// Package session owns the per-conversation accumulator: lifecycle state,
// persistence and the read-merge-write discipline around the aggregator.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = time.Hour

// Status is a session lifecycle state.
type Status string

const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusFlagged Status = "flagged"
	StatusExpired Status = "expired"
)

var transitions = map[Status][]Status{
	StatusNew:     {StatusActive, StatusExpired},
	StatusActive:  {StatusActive, StatusFlagged, StatusExpired},
	StatusFlagged: {StatusFlagged, StatusExpired},
}

// CanTransition reports whether a session may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned for operations on unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a closed session receives a new turn.
	ErrExpired = errors.New("session expired")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// State is everything kept for one session. Intelligence only ever grows.
type State struct {
	ID           string       `json:"sessionId"`
	Status       Status       `json:"status"`
	Intelligence intel.Record `json:"extractedIntelligence"`
	Turns        int          `json:"totalMessagesExchanged"`
	ScamDetected bool         `json:"scamDetected"`
	CallbackSent bool         `json:"callbackSent"`
	StartedAt    time.Time    `json:"startedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// NewState returns a fresh session in StatusNew.
func NewState(id string, now time.Time) *State {
	return &State{
		ID:        id,
		Status:    StatusNew,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Intelligence = s.Intelligence.Clone()
	return &out
}

// Duration returns the time between the session start and now.
func (s *State) Duration(now time.Time) time.Duration {
	if s.StartedAt.IsZero() || now.Before(s.StartedAt) {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Store persists session state. Get returns (nil, nil) when the session is
// absent or its TTL has lapsed.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Set(ctx context.Context, state *State) error
	List(ctx context.Context) ([]*State, error)
	Close() error
}

// Key returns the storage key for a session id.
func Key(id string) string {
	return "session:" + id
}

// ValidateID rejects empty or oversized session ids.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if len(id) > 256 {
		return fmt.Errorf("session id too long (%d bytes)", len(id))
	}
	return nil
}
