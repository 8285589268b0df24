package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pxh52013145/VNote/internal/profile"
)

func (s *Server) handleGetDifyConfig(w http.ResponseWriter, r *http.Request) {
	safe, err := s.cfg.Registry.GetSafe()
	if err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, safe)
}

// handleUpdateDifyConfig patches the active profile and returns the updated
// masked view, mirroring the GET response.
func (s *Server) handleUpdateDifyConfig(w http.ResponseWriter, r *http.Request) {
	var patch profile.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := s.cfg.Registry.Update(patch); err != nil {
		respondErr(w, err)
		return
	}

	s.handleGetDifyConfig(w, r)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.cfg.Registry.ListProfiles()
	if err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, map[string]any{"profiles": profiles})
}

// upsertProfileRequest creates or patches a named profile. The embedded
// Patch fields apply after the optional clone.
type upsertProfileRequest struct {
	Name      string `json:"name"`
	CloneFrom string `json:"clone_from"`
	Activate  bool   `json:"activate"`
	profile.Patch
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req upsertProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Registry.UpsertProfile(req.Name, req.Patch, req.CloneFrom, req.Activate); err != nil {
		respondErr(w, err)
		return
	}

	s.handleListProfiles(w, r)
}

type activateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Registry.SetActiveProfile(req.Name); err != nil {
		respondErr(w, err)
		return
	}

	s.handleListProfiles(w, r)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	if err := s.cfg.Registry.DeleteProfile(name); err != nil {
		respondErr(w, err)
		return
	}

	s.handleListProfiles(w, r)
}

type upsertAppSchemeRequest struct {
	Name      string `json:"name"`
	AppAPIKey string `json:"app_api_key"`
	Activate  bool   `json:"activate"`
}

func (s *Server) handleUpsertAppScheme(w http.ResponseWriter, r *http.Request) {
	var req upsertAppSchemeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Registry.UpsertAppScheme(req.Name, req.AppAPIKey, req.Activate); err != nil {
		respondErr(w, err)
		return
	}

	s.handleGetDifyConfig(w, r)
}

func (s *Server) handleActivateAppScheme(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.cfg.Registry.SetActiveAppScheme(req.Name); err != nil {
		respondErr(w, err)
		return
	}

	s.handleGetDifyConfig(w, r)
}

func (s *Server) handleDeleteAppScheme(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	if err := s.cfg.Registry.DeleteAppScheme(name); err != nil {
		respondErr(w, err)
		return
	}

	s.handleGetDifyConfig(w, r)
}
