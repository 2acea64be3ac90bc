package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger/ledgertest"
	"agencyledger/internal/storage/memory"
)

func TestDefaultReminderProcessorConfig(t *testing.T) {
	config := DefaultReminderProcessorConfig()

	if config.Interval != time.Hour {
		t.Errorf("expected Interval 1h, got %v", config.Interval)
	}
	if config.BatchSize != 100 {
		t.Errorf("expected BatchSize 100, got %d", config.BatchSize)
	}
	if config.DedupeWindow != 7*24*time.Hour {
		t.Errorf("expected DedupeWindow 7d, got %v", config.DedupeWindow)
	}
}

func TestReminderProcessor_StartTwice(t *testing.T) {
	config := DefaultReminderProcessorConfig()
	processor := NewReminderProcessor(memory.New(), config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if !processor.IsRunning() {
		t.Error("processor should be running after Start")
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestReminderProcessor_StopNotRunning(t *testing.T) {
	processor := NewReminderProcessor(memory.New(), DefaultReminderProcessorConfig())
	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func overdueProject(owner uuid.UUID, end time.Time, status core.ProjectStatus) core.Project {
	p := ledgertest.Project(owner, "1000")
	p.Status = status
	p.EndDate = &end
	return p
}

func TestReminderProcessor_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	owner := uuid.New()

	late := overdueProject(owner, now.Add(-48*time.Hour), core.ProjectActive)
	onHold := overdueProject(owner, now.Add(-48*time.Hour), core.ProjectOnHold)
	future := overdueProject(owner, now.Add(30*24*time.Hour), core.ProjectActive)
	for _, p := range []core.Project{late, onHold, future} {
		if err := store.CreateProject(ctx, p); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}

	clock := now
	processor := NewReminderProcessor(store, DefaultReminderProcessorConfig(),
		WithClock(func() time.Time { return clock }))

	n, err := processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}

	reminders, err := store.ListReminders(ctx, owner)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(reminders) != 1 {
		t.Fatalf("expected 1 stored reminder, got %d", len(reminders))
	}
	r := reminders[0]
	if r.Type != core.ReminderOverdueProject {
		t.Errorf("expected type overdue_project, got %s", r.Type)
	}
	if r.ProjectRef() != late.ID.String() {
		t.Errorf("expected data.projectId %s, got %q", late.ID, r.ProjectRef())
	}
	if r.Title != "Project overdue: "+late.Title {
		t.Errorf("unexpected title %q", r.Title)
	}

	// Inside the window the project is not reminded again.
	clock = now.Add(6 * 24 * time.Hour)
	if n, err = processor.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("expected no reminder inside window, got %d (%v)", n, err)
	}

	// After the window a fresh reminder is due.
	clock = now.Add(8 * 24 * time.Hour)
	if n, err = processor.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("expected a reminder after window, got %d (%v)", n, err)
	}
}

func TestReminderProcessor_BatchSize(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p := overdueProject(uuid.New(), now.Add(-time.Duration(i+1)*time.Hour), core.ProjectActive)
		if err := store.CreateProject(ctx, p); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}

	config := DefaultReminderProcessorConfig()
	config.BatchSize = 2
	processor := NewReminderProcessor(store, config, WithClock(func() time.Time { return now }))

	n, err := processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reminders with batch size 2, got %d", n)
	}
}
