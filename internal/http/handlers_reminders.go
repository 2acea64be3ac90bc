package http

import (
	"net/http"

	"agencyledger/internal/core"
	"agencyledger/internal/services"
)

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
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
	in := services.ReminderInput{
		Type:    core.ReminderType(p.Text("type")),
		Title:   p.Text("title"),
		Message: p.Text("message"),
		Data:    p.Object("data"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	rem, err := s.svc.Reminders.CreateReminder(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, rem)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reminders, err := s.svc.Reminders.ListReminders(r.Context(), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(reminders))
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rem, err := s.svc.Reminders.GetReminder(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, rem)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
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
	patch := services.ReminderPatch{
		Title:   p.String("title"),
		Message: p.String("message"),
		Read:    p.Bool("read"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	rem, err := s.svc.Reminders.UpdateReminder(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Reminders.DeleteReminder(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Reminder deleted")
}
