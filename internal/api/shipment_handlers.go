package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/service"
)

func (s *Server) listShipmentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	shipments, err := s.deps.Shipments.List(r.Context(), sessionFrom(r), service.ShipmentListFilter{
		Status: models.ShipmentStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, shipments)
}

// getShipmentHandler returns a single shipment with its milestones
func (s *Server) getShipmentHandler(w http.ResponseWriter, r *http.Request) {
	shipment, err := s.deps.Shipments.Get(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, shipment)
}

func (s *Server) addMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	var in service.MilestoneInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	shipment, err := s.deps.Shipments.AddMilestone(r.Context(), sessionFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, shipment)
}

func (s *Server) createReviewHandler(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	review, err := s.deps.Reviews.Create(r.Context(), sessionFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, review)
}
