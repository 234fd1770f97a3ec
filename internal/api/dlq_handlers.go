package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// PaginationResponse wraps a page of dead letters
type PaginationResponse struct {
	Items    []*models.DeadLetterMessage `json:"items"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
	Status   models.DeadLetterStatus     `json:"status,omitempty"`
	Outbox   map[models.OutboxStatus]int `json:"outbox"`
}

func deadLetterID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidInputError("invalid message ID").WithCode("INVALID_ID")
	}
	return id, nil
}

func deadLetterError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("dead letter message not found").WithCode("NOT_FOUND")
	}
	return apperrors.NewInternalError("dead letter store failed").WithCause(err)
}

// getDeadLettersHandler lists dead letters with the outbox status counts
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pageNum, err := queryInt(r, "page", 1)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if pageNum < 1 {
		pageNum = 1
	}

	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	status := models.DeadLetterStatus(r.URL.Query().Get("status"))

	messages, err := s.deps.DeadLetters.List(ctx, status, pageSize, (pageNum-1)*pageSize)
	if err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	counts, err := s.deps.Outbox.CountByStatus(ctx)
	if err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	s.respondOK(w, PaginationResponse{
		Items:    messages,
		Page:     pageNum,
		PageSize: pageSize,
		Status:   status,
		Outbox:   counts,
	})
}

// retryDeadLetterHandler puts a discarded or stuck message back in the queue
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := deadLetterID(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	message, err := s.deps.DeadLetters.GetMessage(ctx, id)
	if err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	switch message.Status {
	case models.DeadLetterStatusPending:
		s.respondWithError(w, r, apperrors.NewConflictError("message is already queued for retry").WithCode("ALREADY_PENDING"))
		return
	case models.DeadLetterStatusResolved:
		s.respondWithError(w, r, apperrors.NewConflictError("message was already delivered").WithCode("ALREADY_RESOLVED"))
		return
	}

	if err := s.deps.DeadLetters.ResetToRetry(ctx, id); err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	s.logger.Info("Dead letter message requeued", "messageID", id, "admin", sessionFrom(r).UserID)
	s.respondOK(w, map[string]interface{}{
		"message": "Dead letter message queued for retry",
		"id":      id,
	})
}

// discardDeadLetterHandler discards a dead letter message
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := deadLetterID(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	if _, err := s.deps.DeadLetters.GetMessage(ctx, id); err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	if err := s.deps.DeadLetters.MarkAsDiscarded(ctx, id, req.Reason); err != nil {
		s.respondWithError(w, r, deadLetterError(err))
		return
	}

	s.logger.Info("Dead letter message discarded", "messageID", id, "reason", req.Reason, "admin", sessionFrom(r).UserID)
	s.respondOK(w, map[string]interface{}{
		"message": "Dead letter message discarded",
		"id":      id,
	})
}
