package core

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCancelled ProjectStatus = "cancelled"
)

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in-progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
)

const (
	ReminderOverdueProject  ReminderType = "overdue_project"
	ReminderUpcomingPayment ReminderType = "upcoming_payment"
	ReminderCustom          ReminderType = "custom"
)

// EntryKind distinguishes the two independently budgeted ledgers.
const (
	PaymentEntry EntryKind = "payment"
	ExpenseEntry EntryKind = "expense"
)

// DefaultCurrency is applied to projects, payments and expenses created without one.
const DefaultCurrency = "USD"

const (
	maxNotesLength = 2000
	maxTitleLength = 200
)

type (
	ProjectStatus   string
	MilestoneStatus string
	CategoryType    string
	ReminderType    string
	EntryKind       string

	Project struct {
		ID          uuid.UUID       `json:"id"`
		Owner       uuid.UUID       `json:"createdBy"`
		Title       string          `json:"title"`
		Description string          `json:"description,omitempty"`
		ClientID    *uuid.UUID      `json:"client,omitempty"`
		Budget      decimal.Decimal `json:"budget"`
		Currency    string          `json:"currency"`
		Status      ProjectStatus   `json:"status"`
		StartDate   *time.Time      `json:"startDate,omitempty"`
		EndDate     *time.Time      `json:"endDate,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Payment struct {
		ID        uuid.UUID       `json:"id"`
		Owner     uuid.UUID       `json:"createdBy"`
		ProjectID uuid.UUID       `json:"project"`
		ClientID  *uuid.UUID      `json:"client,omitempty"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Method    string          `json:"method,omitempty"`
		Status    string          `json:"status"`
		Date      time.Time       `json:"date"`
		Notes     string          `json:"notes,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	Expense struct {
		ID          uuid.UUID       `json:"id"`
		Owner       uuid.UUID       `json:"createdBy"`
		ProjectID   uuid.UUID       `json:"project"`
		CategoryID  *uuid.UUID      `json:"category,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Date        time.Time       `json:"date"`
		Description string          `json:"description,omitempty"`
		ReceiptURL  string          `json:"receiptUrl,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Milestone struct {
		ID            uuid.UUID       `json:"id"`
		Owner         uuid.UUID       `json:"createdBy"`
		ProjectID     uuid.UUID       `json:"projectId"`
		Name          string          `json:"name"`
		Amount        decimal.Decimal `json:"amount"`
		DueDate       time.Time       `json:"dueDate"`
		Status        MilestoneStatus `json:"status"`
		Completed     bool            `json:"completed"`
		CompletedDate *time.Time      `json:"completedDate,omitempty"`
		Notes         string          `json:"notes,omitempty"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	Client struct {
		ID        uuid.UUID `json:"id"`
		Owner     uuid.UUID `json:"createdBy"`
		Name      string    `json:"name"`
		Email     string    `json:"email,omitempty"`
		Phone     string    `json:"phone,omitempty"`
		Address   string    `json:"address,omitempty"`
		Notes     string    `json:"notes,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Category struct {
		ID          uuid.UUID    `json:"id"`
		Owner       uuid.UUID    `json:"createdBy"`
		Name        string       `json:"name"`
		Type        CategoryType `json:"type"`
		Description string       `json:"description,omitempty"`
		IsDeleted   bool         `json:"isDeleted"`
		CreatedAt   time.Time    `json:"createdAt"`
		UpdatedAt   time.Time    `json:"updatedAt"`
	}

	Reminder struct {
		ID        uuid.UUID       `json:"id"`
		Owner     uuid.UUID       `json:"user"`
		Type      ReminderType    `json:"type"`
		Title     string          `json:"title"`
		Message   string          `json:"message,omitempty"`
		Data      json.RawMessage `json:"data,omitempty"`
		Read      bool            `json:"read"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// EntryAmount is the projection of a payment or expense used for budget totals.
	EntryAmount struct {
		ID     uuid.UUID
		Amount decimal.Decimal
	}
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectDraft, ProjectActive, ProjectCompleted, ProjectOnHold, ProjectCancelled:
		return true
	}
	return false
}

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneInProgress, MilestoneCompleted:
		return true
	}
	return false
}

func (t CategoryType) Valid() bool {
	return t == CategoryExpense || t == CategoryIncome
}

func (t ReminderType) Valid() bool {
	switch t {
	case ReminderOverdueProject, ReminderUpcomingPayment, ReminderCustom:
		return true
	}
	return false
}

// Budgeted reports whether the project enforces a ceiling on its ledgers.
func (p Project) Budgeted() bool {
	return p.Budget.IsPositive()
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return Invalid("title", "Title is required")
	}
	if utf8.RuneCountInString(p.Title) > maxTitleLength {
		return Invalid("title", "Title too long (max 200 characters)")
	}
	if p.Budget.IsNegative() {
		return Invalid("budget", "Budget must be a non-negative number")
	}
	if !AmountInRange(p.Budget) {
		return Invalid("budget", "Budget is out of range")
	}
	if !p.Status.Valid() {
		return Invalid("status", "Invalid status value")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return Invalid("endDate", "End date must be after start date")
	}
	return nil
}

// SetStatus moves a milestone to status and keeps the completion mirror fields in step.
func (m *Milestone) SetStatus(status MilestoneStatus, now time.Time) {
	m.Status = status
	if status == MilestoneCompleted {
		m.Completed = true
		if m.CompletedDate == nil {
			t := now
			m.CompletedDate = &t
		}
		return
	}
	m.Completed = false
	m.CompletedDate = nil
}

func (m Milestone) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return Invalid("name", "Name is required")
	}
	if m.Amount.IsNegative() {
		return Invalid("amount", "Amount must be a non-negative number")
	}
	if !AmountInRange(m.Amount) {
		return Invalid("amount", "Amount is out of range")
	}
	if m.DueDate.IsZero() {
		return Invalid("dueDate", "Due date is required")
	}
	if !m.Status.Valid() {
		return Invalid("status", "Invalid status value")
	}
	if utf8.RuneCountInString(m.Notes) > maxNotesLength {
		return Invalid("notes", "Notes must be at most 2000 characters")
	}
	return nil
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "Name is required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return Invalid("email", "Invalid email")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "Name is required")
	}
	if !c.Type.Valid() {
		return Invalid("type", "Type must be expense or income")
	}
	return nil
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return Invalid("title", "Title is required")
	}
	if !r.Type.Valid() {
		return Invalid("type", "Invalid reminder type")
	}
	return nil
}

// ReminderData is the payload attached to system-generated reminders.
type ReminderData struct {
	ProjectID string `json:"projectId,omitempty"`
}

// ProjectRef returns the project id carried in the reminder data, if any.
func (r Reminder) ProjectRef() string {
	if len(r.Data) == 0 {
		return ""
	}
	var data ReminderData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return ""
	}
	return data.ProjectID
}
