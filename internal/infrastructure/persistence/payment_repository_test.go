package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestPayment(t *testing.T, userID uuid.UUID, ref string, createdAt time.Time) *billing.Payment {
	t.Helper()
	p, err := billing.NewPendingPayment(userID, billing.DefaultTiers()[0], 99000, createdAt)
	require.NoError(t, err)
	if ref != "" {
		require.NoError(t, p.AttachProviderReference(ref, createdAt))
	}
	return p
}

func TestGormPaymentRepository_PutAndFind(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()
	p := newTestPayment(t, uuid.New(), "cs_test_1", testNow)

	require.NoError(t, repo.Put(ctx, p))

	byID, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.UserID, byID.UserID)
	assert.Equal(t, "Growth", byID.TierName)
	assert.True(t, p.Amount.Equal(byID.Amount))
	assert.Equal(t, "EUR", byID.Currency)
	assert.Equal(t, int64(99000), byID.CreditsAdded)
	assert.Equal(t, billing.PaymentStatusPending, byID.Status)
	assert.Nil(t, byID.SettledAt)

	byRef, err := repo.FindByProviderReference(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byRef.ID)
}

func TestGormPaymentRepository_NotFound(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByProviderReference(ctx, "cs_unknown")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByProviderReference(ctx, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormPaymentRepository_PutDuplicate(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()
	p := newTestPayment(t, uuid.New(), "cs_test_1", testNow)
	require.NoError(t, repo.Put(ctx, p))

	t.Run("same id", func(t *testing.T) {
		assert.ErrorIs(t, repo.Put(ctx, p), shared.ErrAlreadyExists)
	})

	t.Run("same provider reference", func(t *testing.T) {
		other := newTestPayment(t, uuid.New(), "cs_test_1", testNow)
		assert.ErrorIs(t, repo.Put(ctx, other), shared.ErrAlreadyExists)
	})

	t.Run("rows without reference do not collide", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, newTestPayment(t, uuid.New(), "", testNow)))
		require.NoError(t, repo.Put(ctx, newTestPayment(t, uuid.New(), "", testNow)))
	})
}

func TestGormPaymentRepository_UpdateStatusIf(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()
	p := newTestPayment(t, uuid.New(), "cs_test_1", testNow)
	require.NoError(t, repo.Put(ctx, p))
	settledAt := testNow.Add(time.Minute)

	updated, err := repo.UpdateStatusIf(ctx, p.ID, billing.PaymentStatusPending, billing.PaymentStatusCompleted, settledAt)
	require.NoError(t, err)
	assert.True(t, updated)

	again, err := repo.UpdateStatusIf(ctx, p.ID, billing.PaymentStatusPending, billing.PaymentStatusFailed, settledAt)
	require.NoError(t, err)
	assert.False(t, again, "a settled payment must not move again")

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.SettledAt)
	assert.True(t, settledAt.Equal(*stored.SettledAt))

	missing, err := repo.UpdateStatusIf(ctx, uuid.New(), billing.PaymentStatusPending, billing.PaymentStatusCompleted, settledAt)
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestGormPaymentRepository_UpdateStatusIf_RejectsIllegalTransition(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))

	_, err := repo.UpdateStatusIf(context.Background(), uuid.New(), billing.PaymentStatusCompleted, billing.PaymentStatusPending, testNow)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestGormPaymentRepository_UpdateStatusIf_Concurrent(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()
	p := newTestPayment(t, uuid.New(), "cs_test_1", testNow)
	require.NoError(t, repo.Put(ctx, p))

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.UpdateStatusIf(ctx, p.ID, billing.PaymentStatusPending, billing.PaymentStatusCompleted, testNow)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestGormPaymentRepository_UpdateStatusIf_SQL(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormPaymentRepository(db.DB)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "payments" SET "settled_at"=\$1,"status"=\$2,"updated_at"=\$3 WHERE id = \$4 AND status = \$5`).
		WithArgs(testNow, "completed", testNow, id, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.UpdateStatusIf(context.Background(), id, billing.PaymentStatusPending, billing.PaymentStatusCompleted, testNow)

	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPaymentRepository_ListByUser(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := newTestPayment(t, userID, "cs_user_"+string(rune('a'+i)), testNow.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Put(ctx, p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, repo.Put(ctx, newTestPayment(t, uuid.New(), "cs_other", testNow)))

	page1, total, err := repo.ListByUser(ctx, userID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID, "newest first")
	assert.Equal(t, ids[3], page1[1].ID)

	page3, _, err := repo.ListByUser(ctx, userID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)

	empty, total, err := repo.ListByUser(ctx, uuid.New(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, empty)
}

func TestGormPaymentRepository_ListPendingBefore(t *testing.T) {
	repo := NewGormPaymentRepository(setupBillingTestDB(t))
	ctx := context.Background()

	old := newTestPayment(t, uuid.New(), "cs_old", testNow.Add(-2*time.Hour))
	older := newTestPayment(t, uuid.New(), "cs_older", testNow.Add(-3*time.Hour))
	fresh := newTestPayment(t, uuid.New(), "cs_fresh", testNow.Add(-time.Minute))
	settled := newTestPayment(t, uuid.New(), "cs_settled", testNow.Add(-4*time.Hour))
	for _, p := range []*billing.Payment{old, older, fresh, settled} {
		require.NoError(t, repo.Put(ctx, p))
	}
	_, err := repo.UpdateStatusIf(ctx, settled.ID, billing.PaymentStatusPending, billing.PaymentStatusFailed, testNow)
	require.NoError(t, err)

	stale, err := repo.ListPendingBefore(ctx, testNow.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older.ID, stale[0].ID, "oldest first")
	assert.Equal(t, old.ID, stale[1].ID)

	limited, err := repo.ListPendingBefore(ctx, testNow, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
