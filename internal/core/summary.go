package core

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectStats summarizes a project's ledgers and milestone progress.
type ProjectStats struct {
	ProjectID           uuid.UUID       `json:"projectId"`
	TotalPayments       decimal.Decimal `json:"totalPayments"`
	TotalExpenses       decimal.Decimal `json:"totalExpenses"`
	MilestoneCount      int             `json:"milestoneCount"`
	CompletedMilestones int             `json:"completedMilestones"`
	MilestoneCompletion float64         `json:"milestoneCompletion"`
	Budget              decimal.Decimal `json:"budget"`
	Currency            string          `json:"currency"`
	Status              ProjectStatus   `json:"status"`
}

// ClientStats aggregates revenue and spend across a client's projects.
type ClientStats struct {
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Projects      int             `json:"projects"`
}

// Timeline event types.
const (
	EventMilestone      = "milestone"
	EventPayment        = "payment"
	EventExpense        = "expense"
	EventProjectCreated = "project_created"
	EventProjectUpdated = "project_updated"
)

// TimelineEvent is one entry of a project's chronological history.
type TimelineEvent struct {
	Type          string           `json:"type"`
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name,omitempty"`
	Status        string           `json:"status,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Date          *time.Time       `json:"date,omitempty"`
	DueDate       *time.Time       `json:"dueDate,omitempty"`
	Completed     *bool            `json:"completed,omitempty"`
	CompletedDate *time.Time       `json:"completedDate,omitempty"`
	Method        string           `json:"method,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Category      *uuid.UUID       `json:"category,omitempty"`
	Description   string           `json:"description,omitempty"`
	CreatedAt     *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

// At returns the instant the event is ordered by.
func (e TimelineEvent) At() time.Time {
	switch {
	case e.CreatedAt != nil:
		return *e.CreatedAt
	case e.Date != nil:
		return *e.Date
	case e.UpdatedAt != nil:
		return *e.UpdatedAt
	}
	return time.Time{}
}

// SortTimeline orders events oldest first; ties keep their input order.
func SortTimeline(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At().Before(events[j].At())
	})
}
