package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockPaymentLedger is a mock implementation of billing.PaymentLedger
type MockPaymentLedger struct {
	mock.Mock
}

func (m *MockPaymentLedger) Put(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentLedger) FindByID(ctx context.Context, paymentID uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentLedger) FindByProviderReference(ctx context.Context, ref string) (*billing.Payment, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentLedger) UpdateStatusIf(ctx context.Context, paymentID uuid.UUID, expected, next billing.PaymentStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, paymentID, expected, next, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentLedger) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]billing.Payment, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]billing.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentLedger) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]billing.Payment, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

// MockUsageAggregator is a mock implementation of billing.UsageAggregator
type MockUsageAggregator struct {
	mock.Mock
}

func (m *MockUsageAggregator) GetUsage(ctx context.Context, userID uuid.UUID, period billing.BillingPeriod) (int64, error) {
	args := m.Called(ctx, userID, period)
	return args.Get(0).(int64), args.Error(1)
}

// MockPaymentGateway is a mock implementation of billing.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateSession(ctx context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *MockPaymentGateway) VerifyAndParse(payload []byte, signature string) (billing.ProviderEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(billing.ProviderEvent), args.Error(1)
}

// MockEntitlementNotifier is a mock implementation of billing.EntitlementNotifier
type MockEntitlementNotifier struct {
	mock.Mock
}

func (m *MockEntitlementNotifier) OnPaymentCompleted(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

// MockCreditBalanceRepository is a mock implementation of billing.CreditBalanceRepository
type MockCreditBalanceRepository struct {
	mock.Mock
}

func (m *MockCreditBalanceRepository) Grant(ctx context.Context, userID, paymentID uuid.UUID, credits int64, at time.Time) (bool, error) {
	args := m.Called(ctx, userID, paymentID, credits, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditBalanceRepository) Get(ctx context.Context, userID uuid.UUID) (*billing.CreditBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CreditBalance), args.Error(1)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// memoryLedger is a PaymentLedger whose conditional update behaves like
// UPDATE ... WHERE status = expected under concurrent callers.
type memoryLedger struct {
	mu       sync.Mutex
	payments map[uuid.UUID]billing.Payment
	updates  int
}

func newMemoryLedger(payments ...*billing.Payment) *memoryLedger {
	l := &memoryLedger{payments: make(map[uuid.UUID]billing.Payment)}
	for _, p := range payments {
		l.payments[p.ID] = *p
	}
	return l
}

func (l *memoryLedger) Put(_ context.Context, p *billing.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.payments[p.ID]; ok {
		return shared.ErrAlreadyExists
	}
	l.payments[p.ID] = *p
	return nil
}

func (l *memoryLedger) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (l *memoryLedger) FindByProviderReference(_ context.Context, ref string) (*billing.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.ProviderReference == ref {
			cp := p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (l *memoryLedger) UpdateStatusIf(_ context.Context, id uuid.UUID, expected, next billing.PaymentStatus, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	p.Status = next
	p.SettledAt = &at
	l.payments[id] = p
	l.updates++
	return true, nil
}

func (l *memoryLedger) ListByUser(context.Context, uuid.UUID, int, int) ([]billing.Payment, int64, error) {
	return nil, 0, nil
}

func (l *memoryLedger) ListPendingBefore(context.Context, time.Time, int) ([]billing.Payment, error) {
	return nil, nil
}

// countingNotifier counts entitlement notifications per payment
type countingNotifier struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{calls: make(map[uuid.UUID]int)}
}

func (n *countingNotifier) OnPaymentCompleted(_ context.Context, p *billing.Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[p.ID]++
	return nil
}

func (n *countingNotifier) count(id uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[id]
}

// recordingRecorder captures Recorder calls
type recordingRecorder struct {
	mu       sync.Mutex
	created  []string
	rejected []billing.RejectionKind
	received []string
	outcomes []WebhookOutcome
}

func (r *recordingRecorder) CheckoutCreated(_ context.Context, tier string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, tier)
}

func (r *recordingRecorder) CheckoutRejected(_ context.Context, kind billing.RejectionKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, kind)
}

func (r *recordingRecorder) WebhookReceived(_ context.Context, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, eventType)
}

func (r *recordingRecorder) WebhookOutcome(_ context.Context, outcome WebhookOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
