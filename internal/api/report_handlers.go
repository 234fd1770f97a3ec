package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/reporting"
	"github.com/vaidashi/freight-exchange/internal/service"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// reportHandler serves /reports/{kind} as JSON, or as CSV with format=csv
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := reporting.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		s.respondWithError(w, r, apperrors.NewNotFoundError("unknown report").WithCode("UNKNOWN_REPORT"))
		return
	}

	period, err := queryInt(r, "period", 0)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	q := r.URL.Query()
	report, err := s.deps.Reports.Compute(r.Context(), sessionFrom(r), service.ReportRequest{
		Kind:      kind,
		CompanyID: q.Get("company_id"),
		Period:    period,
	})
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	switch q.Get("format") {
	case "", "json":
		s.respondOK(w, report)
	case "csv":
		s.writeCSV(w, r, report)
	default:
		s.respondWithError(w, r, apperrors.NewValidationError("invalid query parameter", map[string]string{
			"format": "must be json or csv",
		}))
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, report reporting.Report) {
	header, rows := report.Table()
	name := fmt.Sprintf("%s-report-%s.csv", report.Kind(), time.Now().UTC().Format("2006-01-02"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	if err := cw.WriteAll(rows); err != nil {
		s.logger.Error("Failed to write CSV report", "error", err, "kind", report.Kind(), "path", r.URL.Path)
	}
}
