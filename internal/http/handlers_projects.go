package http

import (
	"net/http"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/ledger"
	"agencyledger/internal/services"
)

var errMilestoneProjectRequired = core.Invalid("projectId", "Project id is required")

// milestoneView carries the advisory budget warning inside the payload.
type milestoneView struct {
	core.Milestone
	Warning string `json:"warning,omitempty"`
}

func viewOf(res services.MilestoneResult) milestoneView {
	return milestoneView{Milestone: res.Milestone, Warning: res.Warning}
}

func projectStatus(s *string) *core.ProjectStatus {
	if s == nil {
		return nil
	}
	st := core.ProjectStatus(*s)
	return &st
}

func milestoneStatus(s *string) *core.MilestoneStatus {
	if s == nil {
		return nil
	}
	st := core.MilestoneStatus(*s)
	return &st
}

// projectTitle accepts "name" as an alias of "title".
func projectTitle(p *bodyParser) *string {
	if t := p.String("title"); t != nil {
		return t
	}
	return p.String("name")
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
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
	in := services.ProjectInput{
		Description: p.Text("description"),
		ClientID:    p.UUID("client"),
		Budget:      p.Amount("budget"),
		Currency:    p.Text("currency"),
		Status:      core.ProjectStatus(p.Text("status")),
		StartDate:   p.Time("startDate"),
		EndDate:     p.Time("endDate"),
	}
	if t := projectTitle(p); t != nil {
		in.Title = *t
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	project, err := s.svc.Projects.CreateProject(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := ledger.ProjectFilter{Status: core.ProjectStatus(r.URL.Query().Get("status"))}
	if f.ClientID, err = queryUUID(r, "client"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.StartsAfter, err = queryTime(r, "startDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.StartsUntil, err = queryTime(r, "endDate"); err != nil {
		writeError(w, r, err)
		return
	}

	projects, err := s.svc.Projects.ListProjects(r.Context(), o, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(projects))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	project, err := s.svc.Projects.GetProject(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
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
	patch := services.ProjectPatch{
		Title:       projectTitle(p),
		Description: p.String("description"),
		ClientID:    p.UUID("client"),
		Budget:      p.Amount("budget"),
		Currency:    p.String("currency"),
		Status:      projectStatus(p.String("status")),
		StartDate:   p.Time("startDate"),
		EndDate:     p.Time("endDate"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	project, err := s.svc.Projects.UpdateProject(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Projects.DeleteProject(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Project deleted")
}

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.svc.Projects.Stats(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, stats)
}

func (s *Server) handleProjectTimeline(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.svc.Projects.Timeline(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(events))
}

func (s *Server) handleListProjectMilestones(w http.ResponseWriter, r *http.Request) {
	o, projectID, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.listMilestones(w, r, o, &projectID)
}

func (s *Server) handleCreateProjectMilestone(w http.ResponseWriter, r *http.Request) {
	o, projectID, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.createMilestone(w, r, o, &projectID)
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.createMilestone(w, r, o, nil)
}

// createMilestone takes the project from the path when given, else from
// the body's projectId.
func (s *Server) createMilestone(w http.ResponseWriter, r *http.Request, o uuid.UUID, projectID *uuid.UUID) {
	p, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if projectID == nil {
		projectID = p.UUID("projectId")
	}
	in := services.MilestoneInput{
		Name:    p.Text("name"),
		Amount:  p.Amount("amount"),
		DueDate: p.Time("dueDate"),
		Status:  core.MilestoneStatus(p.Text("status")),
		Notes:   p.Text("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	if projectID == nil {
		writeError(w, r, errMilestoneProjectRequired)
		return
	}
	in.ProjectID = *projectID

	res, err := s.svc.Milestones.CreateMilestone(r.Context(), o, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, viewOf(res))
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	projectID, err := queryUUID(r, "projectId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.listMilestones(w, r, o, projectID)
}

func (s *Server) listMilestones(w http.ResponseWriter, r *http.Request, o uuid.UUID, projectID *uuid.UUID) {
	milestones, err := s.svc.Milestones.ListMilestones(r.Context(), o, projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, nonNil(milestones))
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.svc.Milestones.GetMilestone(r.Context(), o, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, m)
}

func (s *Server) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
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
	patch := services.MilestonePatch{
		Name:    p.String("name"),
		Amount:  p.Amount("amount"),
		DueDate: p.Time("dueDate"),
		Status:  milestoneStatus(p.String("status")),
		Notes:   p.String("notes"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Milestones.UpdateMilestone(r.Context(), o, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, viewOf(res))
}

func (s *Server) handleMilestoneStatus(w http.ResponseWriter, r *http.Request) {
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
	status := p.Text("status")
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Milestones.SetStatus(r.Context(), o, id, core.MilestoneStatus(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, viewOf(res))
}

func (s *Server) handleDeleteMilestone(w http.ResponseWriter, r *http.Request) {
	o, id, err := ownerAndID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Milestones.DeleteMilestone(r.Context(), o, id); err != nil {
		writeError(w, r, err)
		return
	}
	deleted(w, "Milestone deleted")
}
