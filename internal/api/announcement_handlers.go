package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/service"
)

func (s *Server) listAnnouncementsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	q := r.URL.Query()
	list, err := s.deps.Announcements.List(r.Context(), sessionFrom(r), service.AnnouncementListFilter{
		CompanyID: q.Get("company_id"),
		Status:    models.AnnouncementStatus(q.Get("status")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, list)
}

func (s *Server) createAnnouncementHandler(w http.ResponseWriter, r *http.Request) {
	var in service.AnnouncementInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	ann, err := s.deps.Announcements.Create(r.Context(), sessionFrom(r), in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, ann)
}

func (s *Server) getAnnouncementHandler(w http.ResponseWriter, r *http.Request) {
	ann, err := s.deps.Announcements.Get(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, ann)
}

func (s *Server) setAnnouncementStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.AnnouncementStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	ann, err := s.deps.Announcements.SetStatus(r.Context(), sessionFrom(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, ann)
}
