// Package hub tracks live connections by group and fans events out to them.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/metrics"
	"go.uber.org/zap"
)

// GroupOrders is the group every authenticated connection joins.
const GroupOrders = "orders"

// Member is a registered connection.
// Deliver must not block: it enqueues the frame or fails fast.
type Member interface {
	ID() string
	Deliver(frame []byte) error
}

// Backplane carries broadcasts between processes.
type Backplane interface {
	// Publish sends payload to every process listening on group.
	Publish(ctx context.Context, group string, payload []byte) error
	// Listen blocks, invoking fn for each received message, until ctx is done
	// or the subscription breaks. ready is called once the subscription is live.
	Listen(ctx context.Context, ready func(), fn func(group string, payload []byte)) error
}

var errSubscriptionEnded = errors.New("subscription ended")

// Manager owns the set of connections and their group memberships.
// Without a backplane broadcasts are delivered in-process; with one they are
// published and delivered by Run when they come back.
type Manager struct {
	log *zap.Logger
	rec metrics.Recorder
	bp  Backplane

	// set while Run holds a live backplane subscription
	listening          atomic.Bool
	retryMin, retryMax time.Duration

	mu     sync.RWMutex
	groups map[string]map[string]Member
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackplane routes broadcasts through bp.
func WithBackplane(bp Backplane) Option {
	return func(m *Manager) { m.bp = bp }
}

// WithRecorder sets the metrics sink.
func WithRecorder(rec metrics.Recorder) Option {
	return func(m *Manager) { m.rec = rec }
}

// NewManager constructs an empty manager.
func NewManager(log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:      log,
		rec:      metrics.Nop{},
		groups:   make(map[string]map[string]Member),
		retryMin: 250 * time.Millisecond,
		retryMax: 10 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register adds member to group. Registering twice is a no-op.
func (m *Manager) Register(member Member, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errs.ErrTransportUnavailable
	}
	g, ok := m.groups[group]
	if !ok {
		g = make(map[string]Member)
		m.groups[group] = g
	}
	g[member.ID()] = member
	return nil
}

// Deregister removes member from group.
func (m *Manager) Deregister(member Member, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(member.ID(), group)
}

// DeregisterAll removes member from every group it belongs to.
func (m *Manager) DeregisterAll(member Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for group := range m.groups {
		m.removeLocked(member.ID(), group)
	}
}

func (m *Manager) removeLocked(id, group string) {
	g, ok := m.groups[group]
	if !ok {
		return
	}
	delete(g, id)
	if len(g) == 0 {
		delete(m.groups, group)
	}
}

// Count reports how many members group has.
func (m *Manager) Count(group string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups[group])
}

// Broadcast delivers payload to the members of group registered at call time.
// A failing member is logged and skipped. The error is non-nil only when the
// fanout transport cannot take the event at all.
func (m *Manager) Broadcast(ctx context.Context, group string, payload []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		m.rec.RecordBroadcastFailure()
		return errs.ErrTransportUnavailable
	}

	if m.bp != nil {
		// a published event nobody here is subscribed to would be lost silently
		if !m.listening.Load() {
			m.rec.RecordBroadcastFailure()
			return fmt.Errorf("%w: backplane subscriber down", errs.ErrTransportUnavailable)
		}
		if err := m.bp.Publish(ctx, group, payload); err != nil {
			m.rec.RecordBroadcastFailure()
			return fmt.Errorf("%w: publish %s: %v", errs.ErrTransportUnavailable, group, err)
		}
		return nil
	}
	m.deliver(group, payload)
	return nil
}

func (m *Manager) deliver(group string, payload []byte) {
	m.mu.RLock()
	snapshot := make([]Member, 0, len(m.groups[group]))
	for _, member := range m.groups[group] {
		snapshot = append(snapshot, member)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, member := range snapshot {
		if err := member.Deliver(payload); err != nil {
			m.rec.RecordDropped()
			m.log.Warn("broadcast delivery failed",
				zap.String("group", group),
				zap.String("conn", member.ID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	m.rec.RecordDelivered(delivered)
}

// Run pumps backplane messages into local delivery until ctx is done,
// resubscribing with capped exponential backoff whenever the subscription
// fails. Without a backplane it just waits for ctx.
func (m *Manager) Run(ctx context.Context) error {
	if m.bp == nil {
		<-ctx.Done()
		return nil
	}
	wait := m.retryMin
	for {
		err := m.bp.Listen(ctx, func() {
			m.listening.Store(true)
			m.log.Info("backplane subscribed")
		}, m.deliver)
		if m.listening.Swap(false) {
			wait = m.retryMin
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errSubscriptionEnded
		}
		m.log.Warn("backplane subscription lost", zap.Duration("retryIn", wait), zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		wait = min(wait*2, m.retryMax)
	}
}

// Close refuses further registrations and broadcasts and drops all members.
// Members are not closed; their owners tear them down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.groups = make(map[string]map[string]Member)
}
