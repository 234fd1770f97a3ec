package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/reporting"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

const (
	topCarrierCount  = 5
	leaderboardCount = 10
)

// ReportRequest selects a report
type ReportRequest struct {
	Kind      reporting.Kind
	CompanyID string
	Period    int
}

// ReportService computes the role-specific reports
type ReportService struct {
	store  repository.Store
	logger logger.Logger
	now    func() time.Time
}

func NewReportService(store repository.Store, logger logger.Logger) *ReportService {
	return &ReportService{
		store:  store,
		logger: logger,
		now:    models.GetCurrentTime,
	}
}

// Compute builds the requested report. Supplier and logistics reports cover
// the caller's company; only admins may name another company.
func (s *ReportService) Compute(ctx context.Context, session *models.Session, req ReportRequest) (reporting.Report, error) {
	now := s.now().UTC()
	period := reporting.NormalizePeriod(req.Period)
	header := reporting.Header{
		PeriodMonths: period,
		PeriodStart:  reporting.PeriodStart(now, period),
		GeneratedAt:  now,
	}

	var (
		report reporting.Report
		err    error
	)
	switch req.Kind {
	case reporting.KindSupplier, reporting.KindLogistics:
		want := models.CompanyTypeSupplier
		if req.Kind == reporting.KindLogistics {
			want = models.CompanyTypeLogistics
		}
		header.CompanyID, err = s.scopeCompany(ctx, session, req.CompanyID, want)
		if err != nil {
			return nil, err
		}
		if req.Kind == reporting.KindSupplier {
			report, err = s.supplierReport(ctx, header, now)
		} else {
			report, err = s.logisticsReport(ctx, header, now)
		}
	case reporting.KindAdmin:
		if !session.IsAdmin() {
			return nil, forbidden("admin access required")
		}
		report, err = s.adminReport(ctx, header, now)
	case reporting.KindEmployee:
		header.CompanyID = session.CompanyID
		report, err = s.employeeReport(ctx, session, header, now)
	default:
		return nil, apperrors.NewValidationError("validation failed", map[string]string{"kind": "unknown report kind"})
	}
	if err != nil {
		return nil, storeError(s.logger, err, "report data")
	}

	s.logger.Debug("Report computed", "kind", req.Kind, "company_id", header.CompanyID, "period", period)
	return report, nil
}

func (s *ReportService) scopeCompany(ctx context.Context, session *models.Session, requested string, want models.CompanyType) (string, error) {
	if !session.IsAdmin() {
		if requested != "" && requested != session.CompanyID {
			return "", forbidden("reports are limited to your own company")
		}
		if session.CompanyType != want {
			return "", forbidden("report not available for your company type")
		}
		return session.CompanyID, nil
	}

	if requested == "" {
		return "", apperrors.NewValidationError("validation failed", map[string]string{"company_id": "is required"})
	}
	company, err := s.store.Queries().GetCompany(ctx, requested)
	if err != nil {
		return "", storeError(s.logger, err, "company")
	}
	if company.Type != want {
		return "", apperrors.NewValidationError("validation failed", map[string]string{"company_id": "company type does not match report"})
	}
	return company.ID, nil
}

func (s *ReportService) supplierReport(ctx context.Context, header reporting.Header, now time.Time) (*reporting.SupplierReport, error) {
	q := s.store.Queries()
	since := header.PeriodStart

	anns, err := q.ListAnnouncements(ctx, repository.AnnouncementFilter{CompanyID: header.CompanyID, Since: &since})
	if err != nil {
		return nil, err
	}
	all, err := q.ListOffers(ctx, repository.OfferFilter{SupplierCompanyID: header.CompanyID})
	if err != nil {
		return nil, err
	}

	inPeriod := make(map[string]*models.Announcement, len(anns))
	for _, a := range anns {
		inPeriod[a.ID] = a
	}
	offers := make([]*models.Offer, 0, len(all))
	for _, o := range all {
		if _, ok := inPeriod[o.AnnouncementID]; ok {
			offers = append(offers, o)
		}
	}
	if err := attachItems(ctx, q, offers); err != nil {
		return nil, err
	}

	r := &reporting.SupplierReport{
		Header:         header,
		Announcements:  countAnnouncements(anns),
		OffersReceived: len(offers),
		Monthly:        reporting.MonthBuckets(now, header.PeriodMonths),
	}
	if len(anns) > 0 {
		r.AvgOffersPerAnnouncement = round2(float64(len(offers)) / float64(len(anns)))
	}

	byAnn := make(map[string][]*models.Offer)
	for _, o := range offers {
		byAnn[o.AnnouncementID] = append(byAnn[o.AnnouncementID], o)
	}
	for _, a := range anns {
		if list := byAnn[a.ID]; len(list) > 0 {
			r.PriceSpreads = append(r.PriceSpreads, reporting.AnnouncementSpread{
				AnnouncementID: a.ID,
				Title:          a.Title,
				Offers:         len(list),
				Spreads:        spreads(list),
			})
		}
	}

	r.Routes = routePerformance(anns, byAnn)
	fillAnnouncementBuckets(r.Monthly, anns)
	fillOfferBuckets(r.Monthly, offers)

	r.TopCarriers, err = s.carrierStats(ctx, q, offers, nil, topCarrierCount)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ReportService) logisticsReport(ctx context.Context, header reporting.Header, now time.Time) (*reporting.LogisticsReport, error) {
	q := s.store.Queries()
	since := header.PeriodStart

	offers, err := q.ListOffers(ctx, repository.OfferFilter{LogisticsCompanyID: header.CompanyID, Since: &since})
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, q, offers); err != nil {
		return nil, err
	}

	counts := countOffers(offers)
	r := &reporting.LogisticsReport{
		Header:  header,
		Offers:  counts,
		WinRate: reporting.WinRate(counts.Accepted, counts.Total),
		Monthly: reporting.MonthBuckets(now, header.PeriodMonths),
	}
	fillOfferBuckets(r.Monthly, offers)
	r.Trend = reporting.Trend(r.Monthly)

	r.AvgCompetitiveness, err = s.averageCompetitiveness(ctx, q, offers)
	if err != nil {
		return nil, err
	}
	r.TransportMix = transportMix(offers)

	shipments, err := q.ListShipments(ctx, repository.ShipmentFilter{LogisticsCompanyID: header.CompanyID})
	if err != nil {
		return nil, err
	}
	for _, sh := range shipments {
		if sh.Status == models.ShipmentStatusDelivered {
			r.ShipmentsDelivered++
		} else {
			r.ShipmentsActive++
		}
	}

	reviews, err := q.ListReviews(ctx, repository.ReviewFilter{LogisticsCompanyID: header.CompanyID})
	if err != nil {
		return nil, err
	}
	r.Reviews = len(reviews)
	r.AverageRating = averageRating(reviews)
	return r, nil
}

// averageCompetitiveness scores each offer's cheapest price per currency
// against every price quoted on the same announcement in that currency
func (s *ReportService) averageCompetitiveness(ctx context.Context, q repository.Queries, offers []*models.Offer) (int, error) {
	market := make(map[string]map[models.Currency][]decimal.Decimal)
	var total, n int

	for _, o := range offers {
		prices, ok := market[o.AnnouncementID]
		if !ok {
			siblings, err := q.ListOffers(ctx, repository.OfferFilter{AnnouncementID: o.AnnouncementID})
			if err != nil {
				return 0, err
			}
			if err := attachItems(ctx, q, siblings); err != nil {
				return 0, err
			}
			prices = pricesByCurrency(siblings)
			market[o.AnnouncementID] = prices
		}

		for currency, quoted := range prices {
			own, ok := o.LowestPrice(currency)
			if !ok {
				continue
			}
			spread, _ := reporting.Spread(string(currency), quoted)
			total += reporting.Competitiveness(own.Price, spread.Min, spread.Max)
			n++
		}
	}

	if n == 0 {
		return 0, nil
	}
	return int(math.Round(float64(total) / float64(n))), nil
}

func (s *ReportService) adminReport(ctx context.Context, header reporting.Header, now time.Time) (*reporting.AdminReport, error) {
	q := s.store.Queries()
	since := header.PeriodStart

	companies, err := q.ListCompanies(ctx, repository.CompanyFilter{})
	if err != nil {
		return nil, err
	}
	users, err := q.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	anns, err := q.ListAnnouncements(ctx, repository.AnnouncementFilter{Since: &since})
	if err != nil {
		return nil, err
	}
	offers, err := q.ListOffers(ctx, repository.OfferFilter{Since: &since})
	if err != nil {
		return nil, err
	}
	shipments, err := q.ListShipments(ctx, repository.ShipmentFilter{})
	if err != nil {
		return nil, err
	}
	reviews, err := q.ListReviews(ctx, repository.ReviewFilter{})
	if err != nil {
		return nil, err
	}

	counts := countOffers(offers)
	r := &reporting.AdminReport{
		Header:        header,
		Users:         users,
		Announcements: countAnnouncements(anns),
		Offers:        counts,
		WinRate:       reporting.WinRate(counts.Accepted, counts.Total),
		Monthly:       reporting.MonthBuckets(now, header.PeriodMonths),
	}

	for _, c := range companies {
		switch c.Type {
		case models.CompanyTypeSupplier:
			r.Companies.Suppliers++
		case models.CompanyTypeLogistics:
			r.Companies.Logistics++
		default:
			continue
		}
		r.Companies.Total++
		if c.IsVerified {
			r.Companies.Verified++
		}
	}

	for _, sh := range shipments {
		r.Shipments.Total++
		if sh.Status == models.ShipmentStatusDelivered {
			r.Shipments.Delivered++
		} else {
			r.Shipments.Active++
		}
	}

	fillAnnouncementBuckets(r.Monthly, anns)
	fillOfferBuckets(r.Monthly, offers)

	r.Leaderboard, err = s.carrierStats(ctx, q, offers, reviews, leaderboardCount)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ReportService) employeeReport(ctx context.Context, session *models.Session, header reporting.Header, now time.Time) (*reporting.EmployeeReport, error) {
	q := s.store.Queries()
	since := header.PeriodStart

	r := &reporting.EmployeeReport{
		Header:  header,
		UserID:  session.UserID,
		Role:    string(session.Role),
		Monthly: reporting.MonthBuckets(now, header.PeriodMonths),
	}

	switch session.Role {
	case models.RoleLogisticsEmployee:
		offers, err := q.ListOffers(ctx, repository.OfferFilter{SubmittedByID: session.UserID, Since: &since})
		if err != nil {
			return nil, err
		}
		r.Offers = countOffers(offers)
		fillOfferBuckets(r.Monthly, offers)

	case models.RoleSupplierEmployee:
		anns, err := q.ListAnnouncements(ctx, repository.AnnouncementFilter{CreatedByID: session.UserID, Since: &since})
		if err != nil {
			return nil, err
		}
		r.Announcements = countAnnouncements(anns)
		fillAnnouncementBuckets(r.Monthly, anns)

		var received []*models.Offer
		for _, a := range anns {
			list, err := q.ListOffers(ctx, repository.OfferFilter{AnnouncementID: a.ID})
			if err != nil {
				return nil, err
			}
			received = append(received, list...)
		}
		r.Offers = countOffers(received)
		fillOfferBuckets(r.Monthly, received)
	}

	r.WinRate = reporting.WinRate(r.Offers.Accepted, r.Offers.Total)
	return r, nil
}

// carrierStats ranks carriers by accepted offers, then by offers submitted
func (s *ReportService) carrierStats(ctx context.Context, q repository.Queries, offers []*models.Offer, reviews []*models.Review, limit int) ([]reporting.CarrierStat, error) {
	byCompany := make(map[string]*reporting.CarrierStat)
	for _, o := range offers {
		st, ok := byCompany[o.LogisticsCompanyID]
		if !ok {
			st = &reporting.CarrierStat{CompanyID: o.LogisticsCompanyID}
			byCompany[o.LogisticsCompanyID] = st
		}
		st.Offers++
		if o.Status == models.OfferStatusAccepted {
			st.Accepted++
		}
	}

	ratings := make(map[string][]*models.Review)
	for _, r := range reviews {
		ratings[r.LogisticsCompanyID] = append(ratings[r.LogisticsCompanyID], r)
	}

	stats := make([]reporting.CarrierStat, 0, len(byCompany))
	for _, st := range byCompany {
		company, err := q.GetCompany(ctx, st.CompanyID)
		if err != nil {
			return nil, err
		}
		st.Name = company.Name
		st.WinRate = reporting.WinRate(st.Accepted, st.Offers)
		st.Rating = averageRating(ratings[st.CompanyID])
		stats = append(stats, *st)
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Accepted != b.Accepted {
			return a.Accepted > b.Accepted
		}
		if a.Offers != b.Offers {
			return a.Offers > b.Offers
		}
		return a.Name < b.Name
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func countAnnouncements(anns []*models.Announcement) reporting.AnnouncementCounts {
	var c reporting.AnnouncementCounts
	for _, a := range anns {
		c.Total++
		switch a.Status {
		case models.AnnouncementStatusActive:
			c.Active++
		case models.AnnouncementStatusClosed:
			c.Closed++
		case models.AnnouncementStatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

func countOffers(offers []*models.Offer) reporting.OfferCounts {
	var c reporting.OfferCounts
	for _, o := range offers {
		c.Total++
		switch o.Status {
		case models.OfferStatusPending:
			c.Pending++
		case models.OfferStatusAccepted:
			c.Accepted++
		case models.OfferStatusRejected:
			c.Rejected++
		}
	}
	return c
}

func fillAnnouncementBuckets(buckets []reporting.MonthBucket, anns []*models.Announcement) {
	for _, a := range anns {
		if i := reporting.BucketIndex(buckets, a.CreatedAt); i >= 0 {
			buckets[i].Announcements++
		}
	}
}

func fillOfferBuckets(buckets []reporting.MonthBucket, offers []*models.Offer) {
	for _, o := range offers {
		if i := reporting.BucketIndex(buckets, o.CreatedAt); i >= 0 {
			buckets[i].Offers++
			if o.Status == models.OfferStatusAccepted {
				buckets[i].Accepted++
			}
		}
	}
	reporting.FinalizeWinRates(buckets)
}

func pricesByCurrency(offers []*models.Offer) map[models.Currency][]decimal.Decimal {
	out := make(map[models.Currency][]decimal.Decimal)
	for _, o := range offers {
		for _, it := range o.Items {
			out[it.Currency] = append(out[it.Currency], it.Price)
		}
	}
	return out
}

// spreads computes one spread per currency in a stable order
func spreads(offers []*models.Offer) []reporting.PriceSpread {
	prices := pricesByCurrency(offers)
	currencies := make([]string, 0, len(prices))
	for c := range prices {
		currencies = append(currencies, string(c))
	}
	sort.Strings(currencies)

	out := make([]reporting.PriceSpread, 0, len(currencies))
	for _, c := range currencies {
		if sp, ok := reporting.Spread(c, prices[models.Currency(c)]); ok {
			out = append(out, sp)
		}
	}
	return out
}

func routePerformance(anns []*models.Announcement, offersByAnn map[string][]*models.Offer) []reporting.RoutePerformance {
	byRoute := make(map[string]*reporting.RoutePerformance)
	for _, a := range anns {
		route := a.Route()
		rp, ok := byRoute[route]
		if !ok {
			rp = &reporting.RoutePerformance{Route: route}
			byRoute[route] = rp
		}
		rp.Announcements++
		rp.Offers += len(offersByAnn[a.ID])
		if a.Status == models.AnnouncementStatusClosed {
			rp.Closed++
		}
	}

	out := make([]reporting.RoutePerformance, 0, len(byRoute))
	for _, rp := range byRoute {
		rp.AvgOffers = round2(float64(rp.Offers) / float64(rp.Announcements))
		out = append(out, *rp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Announcements != out[j].Announcements {
			return out[i].Announcements > out[j].Announcements
		}
		return out[i].Route < out[j].Route
	})
	return out
}

func transportMix(offers []*models.Offer) []reporting.TransportShare {
	counts := make(map[models.TransportType]int)
	total := 0
	for _, o := range offers {
		for _, it := range o.Items {
			counts[it.TransportType]++
			total++
		}
	}

	out := make([]reporting.TransportShare, 0, len(counts))
	for _, t := range []models.TransportType{models.TransportAir, models.TransportSea, models.TransportRail, models.TransportRoad} {
		if n := counts[t]; n > 0 {
			out = append(out, reporting.TransportShare{
				TransportType: string(t),
				Items:         n,
				Share:         int(math.Round(100 * float64(n) / float64(total))),
			})
		}
	}
	return out
}

func averageRating(reviews []*models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return round2(float64(sum) / float64(len(reviews)))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
