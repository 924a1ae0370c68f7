package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/glow/pkg/catalog"
	"github.com/nstogner/glow/pkg/domain"
)

// maxImportBytes caps CSV uploads.
const maxImportBytes = 20 << 20

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, users)
}

// --- Templates ---

func validTemplate(t *domain.EmailTemplate) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("name, subject and body are required")
	}
	return nil
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.Store.ListTemplates(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.EmailTemplate
	if err := decodeJSON(w, r, &t); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := validTemplate(&t); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	t.ID = uuid.New().String()
	if err := s.Store.CreateTemplate(r.Context(), &t); err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, t)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.EmailTemplate
	if err := decodeJSON(w, r, &t); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := validTemplate(&t); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	t.ID = r.PathValue("id")
	if err := s.Store.UpdateTemplate(r.Context(), &t); err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteTemplate(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Campaigns ---

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.Store.ListCampaigns(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, campaigns)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var c domain.Campaign
	if err := decodeJSON(w, r, &c); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(c.Name) == "" || c.TemplateID == "" {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("name and template_id are required"))
		return
	}
	if _, err := s.Store.GetTemplate(r.Context(), c.TemplateID); err != nil {
		s.fail(w, err)
		return
	}
	c.ID = uuid.New().String()
	c.Status = domain.CampaignDraft
	c.SentCount = 0
	c.SentAt = nil
	if err := s.Store.CreateCampaign(r.Context(), &c); err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, c)
}

func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.Campaigns.Send(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// --- Products ---

func (s *Server) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	n, err := catalog.Import(r.Context(), s.Store, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"imported": n})
}
