package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/service"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

type submitOfferRequest struct {
	AnnouncementID string `json:"announcement_id"`
	service.OfferInput
}

func (s *Server) listOffersHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	q := r.URL.Query()
	offers, err := s.deps.Offers.List(r.Context(), sessionFrom(r), service.OfferListFilter{
		AnnouncementID: q.Get("announcement_id"),
		Status:         models.OfferStatus(q.Get("status")),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, offers)
}

func (s *Server) submitOfferHandler(w http.ResponseWriter, r *http.Request) {
	var req submitOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if req.AnnouncementID == "" {
		s.respondWithError(w, r, apperrors.NewValidationError("validation failed", map[string]string{
			"announcement_id": "is required",
		}).WithCode("VALIDATION_FAILED"))
		return
	}

	offer, err := s.deps.Offers.Submit(r.Context(), sessionFrom(r), req.AnnouncementID, req.OfferInput)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, offer)
}

func (s *Server) getOfferHandler(w http.ResponseWriter, r *http.Request) {
	offer, err := s.deps.Offers.Get(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, offer)
}

func (s *Server) editOfferHandler(w http.ResponseWriter, r *http.Request) {
	var in service.OfferInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	offer, err := s.deps.Offers.Edit(r.Context(), sessionFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, offer)
}

func (s *Server) setOfferStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.OfferStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	offer, err := s.deps.Offers.SetStatus(r.Context(), sessionFrom(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, offer)
}

func (s *Server) offerHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Offers.History(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, history)
}

func (s *Server) listCommentsHandler(w http.ResponseWriter, r *http.Request) {
	comments, err := s.deps.Offers.ListComments(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, comments)
}

func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	comment, err := s.deps.Offers.AddComment(r.Context(), sessionFrom(r), mux.Vars(r)["id"], req.Content)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, comment)
}

// exportOfferHandler renders the offer through the document service, or
// returns the document as JSON when no renderer is configured
func (s *Server) exportOfferHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Offers.Document(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	if s.deps.Documents == nil || r.URL.Query().Get("format") == "json" {
		s.respondOK(w, doc)
		return
	}

	rendered, err := s.deps.Documents.RenderOffer(r.Context(), doc)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	contentType := rendered.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rendered.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered.Body)
}
