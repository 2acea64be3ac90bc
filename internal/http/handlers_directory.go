package http

import (
	"net/http"

	"agencyledger/internal/core"
	"agencyledger/internal/services"
)

func categoryType(s *string) *core.CategoryType {
	if s == nil {
		return nil
	}
	t := core.CategoryType(*s)
	return &t
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
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
	in := services.ClientInput{
		Name:    p.Text("name"),
		Email:   p.Text("email"),
		Phone:   p.Text("phone"),
		Address: p.Text("address"),
		Notes:   p.Text("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.Directory.CreateClient(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, c)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clients, err := s.svc.Directory.ListClients(r.Context(), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(clients))
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Directory.GetClient(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, c)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
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
	patch := services.ClientPatch{
		Name:    p.String("name"),
		Email:   p.String("email"),
		Phone:   p.String("phone"),
		Address: p.String("address"),
		Notes:   p.String("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.Directory.UpdateClient(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, c)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Directory.DeleteClient(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Client deleted")
}

func (s *Server) handleClientProjects(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	projects, err := s.svc.Directory.ClientProjects(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(projects))
}

func (s *Server) handleClientStats(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.svc.Directory.ClientStats(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, stats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
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
	in := services.CategoryInput{
		Name:        p.Text("name"),
		Type:        core.CategoryType(p.Text("type")),
		Description: p.Text("description"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.Directory.CreateCategory(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, c)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := s.svc.Directory.ListCategories(r.Context(), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(categories))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Directory.GetCategory(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
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
	patch := services.CategoryPatch{
		Name:        p.String("name"),
		Type:        categoryType(p.String("type")),
		Description: p.String("description"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.svc.Directory.UpdateCategory(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Directory.DeleteCategory(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Category deleted")
}
