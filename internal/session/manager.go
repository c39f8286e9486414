package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/conversation"
	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/observe"
)

// Manager serializes read-merge-write per session id around a Store.
type Manager struct {
	store      Store
	aggregator *conversation.Aggregator
	logger     *zap.Logger
	metrics    *observe.Metrics
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerMetrics records turn outcomes.
func WithManagerMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager. A nil aggregator mines with patterns only.
func NewManager(store Store, aggregator *conversation.Aggregator, opts ...ManagerOption) *Manager {
	if aggregator == nil {
		aggregator = conversation.NewAggregator(nil)
	}
	m := &Manager{
		store:      store,
		aggregator: aggregator,
		logger:     zap.NewNop(),
		now:        time.Now,
		locks:      make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &keyLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// ProcessTurn folds one inbound turn into the session, creating it when
// absent. The stored intelligence only ever grows.
func (m *Manager) ProcessTurn(ctx context.Context, id string, history []intel.Message, msg intel.Message) (*State, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := m.lock(id)
	defer unlock()

	st, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if st == nil {
		st = NewState(id, m.now())
		m.logger.Info("session created", zap.String("session", id))
	}
	if st.Status == StatusExpired {
		m.metrics.Turn("expired")
		return nil, fmt.Errorf("session %s: %w", id, ErrExpired)
	}

	st.Intelligence = m.aggregator.Aggregate(ctx, history, msg, st.Intelligence)
	st.Turns++
	if st.Status == StatusNew {
		st.Status = StatusActive
	}
	st.UpdatedAt = m.now()

	if err := m.store.Set(ctx, st); err != nil {
		m.metrics.Turn("error")
		return nil, fmt.Errorf("storing session %s: %w", id, err)
	}
	m.metrics.Turn(string(st.Status))
	m.logger.Debug("turn processed",
		zap.String("session", id),
		zap.Int("turns", st.Turns),
		zap.Int("values", st.Intelligence.Len()))
	return st, nil
}

// Get returns the session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	st, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if st == nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return st, nil
}

// List returns all live sessions.
func (m *Manager) List(ctx context.Context) ([]*State, error) {
	return m.store.List(ctx)
}

// Flag marks an active session as a confirmed scam. Flagging a flagged
// session is a no-op.
func (m *Manager) Flag(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, func(st *State) error {
		if err := st.transition(StatusFlagged); err != nil {
			return err
		}
		st.ScamDetected = true
		return nil
	})
}

// Expire closes a session. Later turns are rejected with ErrExpired.
func (m *Manager) Expire(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, func(st *State) error {
		return st.transition(StatusExpired)
	})
}

// MarkReported records whether the final report has been delivered.
func (m *Manager) MarkReported(ctx context.Context, id string, sent bool) (*State, error) {
	return m.update(ctx, id, func(st *State) error {
		st.CallbackSent = sent
		return nil
	})
}

// ClaimReport marks the session reported when due(st) holds, checking and
// setting under the session lock so concurrent callers cannot both claim it.
// A nil due claims unconditionally. claimed is false when due rejected the
// session; the returned state is then the unchanged stored one.
func (m *Manager) ClaimReport(ctx context.Context, id string, due func(*State) bool) (st *State, claimed bool, err error) {
	unlock := m.lock(id)
	defer unlock()

	st, err = m.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if due != nil && !due(st) {
		return st, false, nil
	}
	st.CallbackSent = true
	st.UpdatedAt = m.now()
	if err := m.store.Set(ctx, st); err != nil {
		return nil, false, fmt.Errorf("storing session %s: %w", id, err)
	}
	return st, true, nil
}

func (m *Manager) update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	unlock := m.lock(id)
	defer unlock()

	st, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	st.UpdatedAt = m.now()
	if err := m.store.Set(ctx, st); err != nil {
		return nil, fmt.Errorf("storing session %s: %w", id, err)
	}
	return st, nil
}

func (s *State) transition(next Status) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%s -> %s: %w", s.Status, next, ErrInvalidTransition)
	}
	s.Status = next
	return nil
}

// Samples lists live sessions for the observability engine.
func (m *Manager) Samples(ctx context.Context) ([]observe.Sample, error) {
	states, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]observe.Sample, 0, len(states))
	for _, st := range states {
		out = append(out, observe.Sample{
			ID:           st.ID,
			Status:       string(st.Status),
			Turns:        st.Turns,
			ScamDetected: st.ScamDetected,
			CallbackSent: st.CallbackSent,
			Intelligence: st.Intelligence,
			StartedAt:    st.StartedAt,
			UpdatedAt:    st.UpdatedAt,
		})
	}
	return out, nil
}
