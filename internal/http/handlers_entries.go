package http

import (
	"net/http"

	"agencyledger/internal/ledger"
	"agencyledger/internal/services"
)

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := services.PaymentInput{
		ProjectID: p.UUID("project"),
		ClientID:  p.UUID("client"),
		Amount:    p.Amount("amount"),
		Currency:  p.Text("currency"),
		Method:    p.Text("method"),
		Status:    p.Text("status"),
		Date:      p.Time("date"),
		Notes:     p.Text("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	payment, err := s.svc.Coordinator.CreatePayment(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, payment)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var f ledger.PaymentFilter
	if f.ProjectID, err = queryUUID(r, "project"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.ClientID, err = queryUUID(r, "client"); err != nil {
		writeError(w, r, err)
		return
	}

	payments, err := s.svc.Coordinator.ListPayments(r.Context(), o, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(payments))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := s.svc.Coordinator.GetPayment(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, payment)
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.PaymentPatch{
		ProjectID: p.UUID("project"),
		ClientID:  p.UUID("client"),
		Amount:    p.Amount("amount"),
		Currency:  p.String("currency"),
		Method:    p.String("method"),
		Status:    p.String("status"),
		Date:      p.Time("date"),
		Notes:     p.String("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	payment, err := s.svc.Coordinator.UpdatePayment(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, payment)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Coordinator.DeletePayment(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Payment deleted")
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := services.ExpenseInput{
		ProjectID:   p.UUID("project"),
		CategoryID:  p.UUID("category"),
		Amount:      p.Amount("amount"),
		Currency:    p.Text("currency"),
		Date:        p.Time("date"),
		Description: p.Text("description"),
		ReceiptURL:  p.Text("receiptUrl"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.svc.Coordinator.CreateExpense(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, expense)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var f ledger.ExpenseFilter
	if f.ProjectID, err = queryUUID(r, "project"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.CategoryID, err = queryUUID(r, "category"); err != nil {
		writeError(w, r, err)
		return
	}

	expenses, err := s.svc.Coordinator.ListExpenses(r.Context(), o, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(expenses))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.svc.Coordinator.GetExpense(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.ExpensePatch{
		ProjectID:   p.UUID("project"),
		CategoryID:  p.UUID("category"),
		Amount:      p.Amount("amount"),
		Currency:    p.String("currency"),
		Date:        p.Time("date"),
		Description: p.String("description"),
		ReceiptURL:  p.String("receiptUrl"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.svc.Coordinator.UpdateExpense(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Coordinator.DeleteExpense(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Expense deleted")
}
