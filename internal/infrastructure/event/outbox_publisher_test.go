package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/persistence/models"
	"github.com/erp/returns/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestPublisher(clock shared.Clock, opts ...OutboxPublisherOption) *OutboxPublisher {
	serializer := NewEventSerializer()
	serializer.Register(refundRequested, &testutil.StubEvent{})
	return NewOutboxPublisher(serializer, clock, opts...)
}

func TestOutboxPublisher_PublishWithTx(t *testing.T) {
	db := setupSQLiteDB(t)
	clock := shared.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	publisher := newTestPublisher(clock, WithMaxRetries(4))
	ctx := context.Background()

	events := []shared.DomainEvent{
		newTestEvent(refundRequested, uuid.New()),
		newTestEvent(refundRequested, uuid.New()),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(ctx, tx, events...)
	})
	require.NoError(t, err)

	var rows []models.OutboxEntryModel
	require.NoError(t, db.Order("created_at").Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, shared.OutboxStatusPending, row.Status)
		assert.Equal(t, 4, row.MaxRetries)
		assert.True(t, row.CreatedAt.Equal(clock.Now()))
	}
}

func TestOutboxPublisher_PublishWithTx_EmptyEvents(t *testing.T) {
	db := setupSQLiteDB(t)
	publisher := newTestPublisher(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.PublishWithTx(context.Background(), tx)
	})
	require.NoError(t, err)
}

func TestOutboxPublisher_PublishWithTx_TransactionRollback(t *testing.T) {
	db := setupSQLiteDB(t)
	publisher := newTestPublisher(nil)
	ctx := context.Background()

	testErr := errors.New("simulated error")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.PublishWithTx(ctx, tx, newTestEvent(refundRequested, uuid.New())); err != nil {
			return err
		}
		return testErr
	})
	require.ErrorIs(t, err, testErr)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOutboxPublisher_SaveEvents_MemoryOutbox(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	memory := NewInMemoryOutboxRepository(clock)
	nudged := 0
	publisher := newTestPublisher(clock, WithMemoryOutbox(memory), WithSavedHook(func() { nudged++ }))

	err := publisher.SaveEvents(context.Background(), nil, newTestEvent(refundRequested, uuid.New()))
	require.NoError(t, err)

	pending, err := memory.FindPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 1, nudged)
}

func TestOutboxPublisher_SaveEvents_RejectsUnknownTx(t *testing.T) {
	publisher := newTestPublisher(nil)

	err := publisher.SaveEvents(context.Background(), "not-a-tx", newTestEvent(refundRequested, uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "*gorm.DB")

	err = publisher.SaveEvents(context.Background(), nil, newTestEvent(refundRequested, uuid.New()))
	require.Error(t, err)
}
