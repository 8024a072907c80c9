package service

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/limiter"
	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeAccounts struct {
	mu      sync.Mutex
	byPhone map[string]*model.Account

	getErr error
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byPhone: map[string]*model.Account{}} }

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byPhone[a.Phone]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *a
	f.byPhone[a.Phone] = &cpy
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byPhone {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) GetByPhone(_ context.Context, phone string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byPhone[phone]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

// fakeSessions mimics the conditional write: the whole check-and-set runs
// under one lock.
type fakeSessions struct {
	mu        sync.Mutex
	byAccount map[uuid.UUID]model.Session
	now       func() time.Time

	acquireErr   error
	acquireCalls int
	releaseCalls int
}

var _ repository.SessionRepository = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byAccount: map[uuid.UUID]model.Session{}, now: time.Now}
}

func (f *fakeSessions) live(s model.Session) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(f.now())
}

func (f *fakeSessions) TryAcquire(_ context.Context, accountID uuid.UUID, token string, expiresAt *time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireCalls++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if cur, ok := f.byAccount[accountID]; ok && f.live(cur) {
		return nil, errs.ErrSessionActive
	}
	s := model.Session{Token: token, AccountID: accountID, CreatedAt: f.now(), ExpiresAt: expiresAt}
	f.byAccount[accountID] = s
	return &s, nil
}

func (f *fakeSessions) Get(_ context.Context, accountID uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byAccount[accountID]
	if !ok || !f.live(s) {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessions) Release(_ context.Context, accountID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if _, ok := f.byAccount[accountID]; !ok {
		return 0, nil
	}
	delete(f.byAccount, accountID)
	return 1, nil
}

func (f *fakeSessions) count(accountID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byAccount[accountID]; ok {
		return 1
	}
	return 0
}

type fakeLimiter struct {
	mu sync.Mutex

	denied      bool
	allowErr    error
	failBlocked bool

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowCalls++
	return !l.denied, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCalls++
	return l.failBlocked, time.Minute, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	nextID int64
	calls  []model.NewOrder
	modes  []repository.ProductMode
	err    error
}

var _ repository.OrderRepository = (*fakeOrders)(nil)

func (f *fakeOrders) CreateSingleItem(_ context.Context, accountID uuid.UUID, in model.NewOrder, mode repository.ProductMode) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &model.Order{
		ID:        f.nextID,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
		Items: []model.OrderItem{
			{ProductID: uuid.Must(uuid.NewV4()), ProductName: in.Name, Quantity: 1},
		},
	}, nil
}

type sentFrame struct {
	group   string
	payload []byte
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

var _ Broadcaster = (*fakeBroadcaster)(nil)

func (f *fakeBroadcaster) Broadcast(_ context.Context, group string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentFrame{group: group, payload: payload})
	return nil
}
