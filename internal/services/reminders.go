package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

var errReminderNotFound = core.NotFound(core.CodeNotFound, "Reminder not found")

type ReminderInput struct {
	Type    core.ReminderType
	Title   string
	Message string
	Data    json.RawMessage
}

type ReminderPatch struct {
	Title   *string
	Message *string
	Read    *bool
}

type ReminderService struct {
	deps
	store ledger.Store
}

func NewReminderService(store ledger.Store, opts ...Option) *ReminderService {
	return &ReminderService{deps: newDeps(log.ComponentReminders, opts), store: store}
}

func (s *ReminderService) CreateReminder(ctx context.Context, owner uuid.UUID, in ReminderInput) (core.Reminder, error) {
	now := s.clock()
	r := core.Reminder{
		ID:        uuid.New(),
		Owner:     owner,
		Type:      in.Type,
		Title:     strings.TrimSpace(in.Title),
		Message:   in.Message,
		Data:      in.Data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if r.Type == "" {
		r.Type = core.ReminderCustom
	}
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}
	if err := s.store.CreateReminder(ctx, r); err != nil {
		return core.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

func (s *ReminderService) GetReminder(ctx context.Context, owner, id uuid.UUID) (core.Reminder, error) {
	r, err := s.store.GetReminder(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.Reminder{}, errReminderNotFound
	}
	if err != nil {
		return core.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// ListReminders returns the owner's reminders, newest first.
func (s *ReminderService) ListReminders(ctx context.Context, owner uuid.UUID) ([]core.Reminder, error) {
	out, err := s.store.ListReminders(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return out, nil
}

func (s *ReminderService) UpdateReminder(ctx context.Context, owner, id uuid.UUID, patch ReminderPatch) (core.Reminder, error) {
	r, err := s.GetReminder(ctx, owner, id)
	if err != nil {
		return core.Reminder{}, err
	}
	if patch.Title != nil {
		r.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Message != nil {
		r.Message = *patch.Message
	}
	if patch.Read != nil {
		r.Read = *patch.Read
	}
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}
	r.UpdatedAt = s.clock()

	if err := s.store.UpdateReminder(ctx, r); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return core.Reminder{}, errReminderNotFound
		}
		return core.Reminder{}, fmt.Errorf("update reminder: %w", err)
	}
	return r, nil
}

func (s *ReminderService) DeleteReminder(ctx context.Context, owner, id uuid.UUID) error {
	err := s.store.DeleteReminder(ctx, owner, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return errReminderNotFound
	}
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}
