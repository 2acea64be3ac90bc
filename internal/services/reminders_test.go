package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
)

func TestReminderCRUD(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		s := NewReminderService(store, WithClock(func() time.Time { return clock }))

		_, err := s.CreateReminder(ctx, owner, ReminderInput{Title: "  "})
		e := requireCode(t, err, core.CodeValidation)
		assert.Equal(t, "Title is required", e.Message)

		first, err := s.CreateReminder(ctx, owner, ReminderInput{Title: "Send invoice"})
		require.NoError(t, err)
		assert.Equal(t, core.ReminderCustom, first.Type)
		assert.False(t, first.Read)

		clock = clock.Add(time.Minute)
		second, err := s.CreateReminder(ctx, owner, ReminderInput{Title: "Call client", Type: core.ReminderUpcomingPayment})
		require.NoError(t, err)

		list, err := s.ListReminders(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID, "newest first")

		read := true
		msg := "Net 30"
		updated, err := s.UpdateReminder(ctx, owner, first.ID, ReminderPatch{Read: &read, Message: &msg})
		require.NoError(t, err)
		assert.True(t, updated.Read)
		assert.Equal(t, "Send invoice", updated.Title)

		got, err := s.GetReminder(ctx, owner, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)
		assert.Equal(t, msg, got.Message)

		_, err = s.GetReminder(ctx, uuid.New(), first.ID)
		requireCode(t, err, core.CodeNotFound)

		require.NoError(t, s.DeleteReminder(ctx, owner, first.ID))
		err = s.DeleteReminder(ctx, owner, first.ID)
		e = requireCode(t, err, core.CodeNotFound)
		assert.Equal(t, "Reminder not found", e.Message)
	})
}

func TestActivityRecordsPublishedEvents(t *testing.T) {
	eachBackend(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		owner := uuid.New()
		p := seedProject(t, store, owner, "0")
		c := NewCoordinator(store, WithPublisher(NewEventRecorder(store)))
		activity := NewActivityService(store)

		pay, err := c.CreatePayment(ctx, owner, PaymentInput{ProjectID: &p.ID, Amount: amount("42")})
		require.NoError(t, err)
		require.NoError(t, c.DeletePayment(ctx, owner, pay.ID))

		events, err := activity.Recent(ctx, owner, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, core.PaymentDeleted, events[0].Type)
		assert.Equal(t, core.PaymentCreated, events[1].Type)
		assert.Equal(t, pay.ID, events[1].EntityID)
		assert.True(t, events[1].Amount.Equal(pay.Amount))

		limited, err := activity.Recent(ctx, owner, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		foreign, err := activity.Recent(ctx, uuid.New(), 10)
		require.NoError(t, err)
		assert.Empty(t, foreign)
	})
}
