package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"weft/internal/backend"
)

func (s *server) completeState(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	var req CompleteStateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.CompleteCurrentState(r.Context(), ref, req.Status))
}

func (s *server) setState(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	var req SetStateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.SetState(r.Context(), ref, req.State, req.Status, req.Immediate))
}

func (s *server) stateHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	events, err := s.client.StateHistory(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []backend.StateEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) listDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.client.ListDefinitions(r.Context(), backend.Category(chi.URLParam(r, "category")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if defs == nil {
		defs = []backend.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// findDefinition answers 204 when the key is absent; FindDefinition's nil
// result is not an error.
func (s *server) findDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.client.FindDefinition(r.Context(), backend.Category(chi.URLParam(r, "category")), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if def == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *server) createDefinition(w http.ResponseWriter, r *http.Request) {
	var def backend.Definition
	if err := decodeBody(r, &def); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.client.CreateDefinition(r.Context(), def); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *server) updateDefinition(w http.ResponseWriter, r *http.Request) {
	var def backend.Definition
	if err := decodeBody(r, &def); err != nil {
		s.writeError(w, r, err)
		return
	}
	def.Category = backend.Category(chi.URLParam(r, "category"))
	def.Key = chi.URLParam(r, "key")
	s.noContent(w, r, s.client.UpdateDefinition(r.Context(), def))
}
