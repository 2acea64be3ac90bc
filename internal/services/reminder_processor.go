package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
)

// ReminderProcessorConfig holds configuration for the reminder processor
type ReminderProcessorConfig struct {
	// Interval is how often to look for overdue projects (default: 1h)
	Interval time.Duration

	// BatchSize is the max number of projects examined per pass (default: 100)
	BatchSize int

	// DedupeWindow suppresses a new reminder while one for the same project
	// is younger than this (default: 7 days)
	DedupeWindow time.Duration
}

func DefaultReminderProcessorConfig() ReminderProcessorConfig {
	return ReminderProcessorConfig{
		Interval:     time.Hour,
		BatchSize:    100,
		DedupeWindow: 7 * 24 * time.Hour,
	}
}

// ReminderProcessor periodically raises overdue_project reminders for active
// projects past their end date.
type ReminderProcessor struct {
	deps
	store  ledger.Store
	config ReminderProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReminderProcessor(store ledger.Store, config ReminderProcessorConfig, opts ...Option) *ReminderProcessor {
	return &ReminderProcessor{
		deps:   newDeps(log.ComponentWorker, opts),
		store:  store,
		config: config,
	}
}

// Start runs a pass immediately and then one per interval. Returns an
// error if already running.
func (p *ReminderProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reminder processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reminder processor started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (p *ReminderProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Reminder processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reminder processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ReminderProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReminderProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.pass(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *ReminderProcessor) pass(ctx context.Context) {
	n, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Reminder pass failed", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Reminder pass complete", "created", n)
	}
}

// RunOnce performs one overdue check and returns how many reminders it
// created. Per-project failures are logged and skipped.
func (p *ReminderProcessor) RunOnce(ctx context.Context) (int, error) {
	now := p.clock()
	projects, err := p.store.ListOverdueProjects(ctx, now, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list overdue projects: %w", err)
	}

	created := 0
	for _, project := range projects {
		select {
		case <-ctx.Done():
			p.metrics.RemindersCreated(created)
			return created, ctx.Err()
		default:
		}

		ok, err := p.remind(ctx, project, now)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to create overdue reminder",
				log.FieldProjectID, project.ID.String(), log.FieldError, err)
			continue
		}
		if ok {
			created++
		}
	}
	p.metrics.RemindersCreated(created)
	return created, nil
}

func (p *ReminderProcessor) remind(ctx context.Context, project core.Project, now time.Time) (bool, error) {
	exists, err := p.store.HasRecentProjectReminder(ctx, project.Owner, project.ID,
		core.ReminderOverdueProject, now.Add(-p.config.DedupeWindow))
	if err != nil {
		return false, fmt.Errorf("check recent reminder: %w", err)
	}
	if exists {
		return false, nil
	}

	data, err := json.Marshal(core.ReminderData{ProjectID: project.ID.String()})
	if err != nil {
		return false, fmt.Errorf("encode reminder data: %w", err)
	}
	message := fmt.Sprintf("Project '%s' passed its end date", project.Title)
	if project.EndDate != nil {
		message = fmt.Sprintf("Project '%s' passed its end date (%s).",
			project.Title, project.EndDate.UTC().Format(time.RFC3339))
	}
	r := core.Reminder{
		ID:        uuid.New(),
		Owner:     project.Owner,
		Type:      core.ReminderOverdueProject,
		Title:     "Project overdue: " + project.Title,
		Message:   message,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreateReminder(ctx, r); err != nil {
		return false, fmt.Errorf("create reminder: %w", err)
	}
	p.logger.InfoContext(ctx, "Created overdue reminder",
		log.FieldOwnerID, project.Owner.String(), log.FieldProjectID, project.ID.String())
	return true, nil
}
