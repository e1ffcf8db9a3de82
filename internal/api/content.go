package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"weft/internal/backend"
)

func (s *server) createMetadata(w http.ResponseWriter, r *http.Request) {
	var in backend.MetadataInput
	if err := decodeHeader(r, MetadataHeader, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	meta, err := s.client.CreateMetadata(r.Context(), in, r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *server) getMetadata(w http.ResponseWriter, r *http.Request) {
	version := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("version")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, badRequest("version %q is not an integer", raw))
			return
		}
		version = v
	}
	meta, err := s.client.GetMetadata(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	coll, err := s.client.CreateCollection(r.Context(), req.Name, req.Attributes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, coll)
}

func (s *server) getCollection(w http.ResponseWriter, r *http.Request) {
	coll, err := s.client.GetCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coll)
}

func (s *server) openContent(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	body, err := s.client.OpenContent(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.stream(w, r, body)
}

func (s *server) listSupplementary(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	items, err := s.client.ListSupplementary(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []backend.Supplementary{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) putSupplementary(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	var in backend.SupplementaryInput
	if err := decodeHeader(r, SupplementaryHeader, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.client.PutSupplementary(r.Context(), ref, in, r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) openSupplementary(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	body, err := s.client.OpenSupplementary(r.Context(), ref, chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.stream(w, r, body)
}

func (s *server) setAttributes(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	var req AttributesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.SetAttributes(r.Context(), ref, req.Attributes))
}

func (s *server) indexDocument(w http.ResponseWriter, r *http.Request) {
	var doc backend.SearchDocument
	if err := decodeBody(r, &doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.IndexDocument(r.Context(), doc))
}

func (s *server) removeDocument(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseRef(r.URL.Query())
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	s.noContent(w, r, s.client.RemoveDocument(r.Context(), ref))
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	var query backend.SearchQuery
	if err := decodeBody(r, &query); err != nil {
		s.writeError(w, r, err)
		return
	}
	hits, err := s.client.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []backend.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *server) stream(w http.ResponseWriter, r *http.Request, body io.ReadCloser) {
	defer body.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("content stream interrupted", "path", r.URL.Path, "error", err)
	}
}
