package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/service"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, Health{
		Status:    "ok",
		Version:   Version,
		Store:     s.config.StoreDriver,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	profile, err := s.deps.Companies.Register(r.Context(), in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, profile)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	res, err := s.deps.Companies.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, res)
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Companies.Me(r.Context(), sessionFrom(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, profile)
}

func (s *Server) createEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	var in service.EmployeeInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	user, err := s.deps.Companies.CreateEmployee(r.Context(), sessionFrom(r), in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondCreated(w, user)
}

func (s *Server) companyReviewsHandler(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.deps.Reviews.ListForCompany(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, reviews)
}

func (s *Server) listCompaniesHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	filter := repository.CompanyFilter{
		Type:   models.CompanyType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("verified"); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondWithError(w, r, apperrors.NewValidationError("invalid query parameter", map[string]string{
				"verified": "must be true or false",
			}))
			return
		}
		filter.Verified = &verified
	}

	companies, err := s.deps.Companies.ListCompanies(r.Context(), sessionFrom(r), filter)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, companies)
}

func (s *Server) updateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	var update service.CompanyUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	company, err := s.deps.Companies.UpdateCompany(r.Context(), sessionFrom(r), mux.Vars(r)["id"], update)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondOK(w, company)
}
