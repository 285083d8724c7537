package server

import (
	"errors"
	"net/http"

	"github.com/tombee/chatflow/internal/templates"
	cferrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/workflow"
)

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

// TemplateResponse is returned by GET /v1/templates/{name}.
type TemplateResponse struct {
	templates.Template
	Graph *workflow.Graph `json:"graph"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"active_runs": len(s.gate.slots),
	})
}

// handleValidate always answers 200; validity is in the body.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, workflow.Validate(req.Nodes, req.Edges))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	list, err := templates.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	meta, err := templates.Describe(name)
	if err != nil {
		var nf *cferrors.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := templates.Load(name, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TemplateResponse{Template: meta, Graph: g})
}
