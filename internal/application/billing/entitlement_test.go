package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func completedPayment(t *testing.T) *billing.Payment {
	t.Helper()
	p := pendingPayment(t, "cs_test_1")
	require.NoError(t, p.Settle(billing.PaymentStatusCompleted, fixedNow))
	return p
}

func TestEventBusEntitlementNotifier_PublishesCompletedEvent(t *testing.T) {
	publisher := new(MockEventPublisher)
	notifier := NewEventBusEntitlementNotifier(publisher)
	notifier.now = fixedClock
	payment := completedPayment(t)

	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		if len(events) != 1 {
			return false
		}
		ev, ok := events[0].(*billing.PaymentCompletedEvent)
		return ok &&
			ev.EventType() == billing.EventTypePaymentCompleted &&
			ev.AggregateID() == payment.ID &&
			ev.UserID == payment.UserID &&
			ev.CreditsAdded == payment.CreditsAdded &&
			ev.OccurredAt().Equal(fixedNow)
	})).Return(nil).Once()

	require.NoError(t, notifier.OnPaymentCompleted(context.Background(), payment))
	publisher.AssertExpectations(t)
}

func TestEventBusEntitlementNotifier_PropagatesPublishError(t *testing.T) {
	publisher := new(MockEventPublisher)
	notifier := NewEventBusEntitlementNotifier(publisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus closed"))

	err := notifier.OnPaymentCompleted(context.Background(), completedPayment(t))
	assert.EqualError(t, err, "bus closed")
}

func TestCreditGrantHandler_EventTypes(t *testing.T) {
	h := NewCreditGrantHandler(new(MockCreditBalanceRepository), zap.NewNop())
	assert.Equal(t, []string{billing.EventTypePaymentCompleted}, h.EventTypes())
}

func TestCreditGrantHandler_Handle(t *testing.T) {
	payment := completedPayment(t)
	event := billing.NewPaymentCompletedEvent(payment, fixedNow)

	t.Run("grants credits", func(t *testing.T) {
		credits := new(MockCreditBalanceRepository)
		credits.On("Grant", mock.Anything, payment.UserID, payment.ID, int64(99000), fixedNow).Return(true, nil).Once()

		h := NewCreditGrantHandler(credits, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), event))
		credits.AssertExpectations(t)
	})

	t.Run("replayed grant is a no-op", func(t *testing.T) {
		credits := new(MockCreditBalanceRepository)
		credits.On("Grant", mock.Anything, payment.UserID, payment.ID, int64(99000), fixedNow).Return(false, nil)

		h := NewCreditGrantHandler(credits, zap.NewNop())
		assert.NoError(t, h.Handle(context.Background(), event))
	})

	t.Run("repository failure", func(t *testing.T) {
		credits := new(MockCreditBalanceRepository)
		credits.On("Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(false, errors.New("db down"))

		h := NewCreditGrantHandler(credits, zap.NewNop())
		err := h.Handle(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), payment.ID.String())
	})

	t.Run("unexpected event", func(t *testing.T) {
		credits := new(MockCreditBalanceRepository)
		h := NewCreditGrantHandler(credits, zap.NewNop())

		err := h.Handle(context.Background(), billing.NewPaymentFailedEvent(payment, "expired", fixedNow))
		assert.Error(t, err)
		credits.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCreditGrantHandler_UnknownUser(t *testing.T) {
	credits := new(MockCreditBalanceRepository)
	h := NewCreditGrantHandler(credits, zap.NewNop())
	event := &billing.PaymentCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(billing.EventTypePaymentCompleted, billing.AggregateTypePayment, uuid.New(), fixedNow),
		PaymentID:       uuid.New(),
		UserID:          uuid.New(),
		CreditsAdded:    900000,
	}
	credits.On("Grant", mock.Anything, event.UserID, event.PaymentID, int64(900000), fixedNow).Return(true, nil)

	require.NoError(t, h.Handle(context.Background(), event))
	credits.AssertExpectations(t)
}
