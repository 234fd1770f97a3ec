package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		if unreadOnly, err = strconv.ParseBool(raw); err != nil {
			s.respondWithError(w, r, apperrors.NewValidationError("invalid query parameter", map[string]string{
				"unread": "must be true or false",
			}))
			return
		}
	}

	list, err := s.deps.Notifications.List(r.Context(), sessionFrom(r), unreadOnly, limit, offset)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, list)
}

func (s *Server) unreadCountHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.UnreadCount(r.Context(), sessionFrom(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, map[string]int{"count": n})
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.MarkRead(r.Context(), sessionFrom(r), mux.Vars(r)["id"]); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, map[string]string{"id": mux.Vars(r)["id"]})
}

func (s *Server) markAllReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.MarkAllRead(r.Context(), sessionFrom(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, map[string]int64{"updated": n})
}
