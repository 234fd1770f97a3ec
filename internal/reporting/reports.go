package reporting

import (
	"fmt"
	"strconv"
	"time"
)

type Kind string

const (
	KindSupplier  Kind = "supplier"
	KindLogistics Kind = "logistics"
	KindAdmin     Kind = "admin"
	KindEmployee  Kind = "employee"
)

// ParseKind validates a kind from a request path
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindSupplier, KindLogistics, KindAdmin, KindEmployee:
		return k, true
	}
	return "", false
}

// Report is implemented by every typed report. Table flattens it into
// section/metric/value rows for CSV export.
type Report interface {
	Kind() Kind
	Table() (header []string, rows [][]string)
}

var tableHeader = []string{"section", "metric", "value"}

type table [][]string

func (t *table) add(section, metric string, value interface{}) {
	var v string
	switch x := value.(type) {
	case string:
		v = x
	case int:
		v = strconv.Itoa(x)
	case float64:
		v = strconv.FormatFloat(x, 'f', 2, 64)
	case fmt.Stringer:
		v = x.String()
	default:
		v = fmt.Sprint(x)
	}
	*t = append(*t, []string{section, metric, v})
}

func (t *table) monthly(buckets []MonthBucket) {
	for _, b := range buckets {
		section := "monthly:" + b.Month
		t.add(section, "announcements", b.Announcements)
		t.add(section, "offers", b.Offers)
		t.add(section, "accepted", b.Accepted)
		t.add(section, "win_rate", b.WinRate)
	}
}

// Header describes the scope every report shares
type Header struct {
	CompanyID    string    `json:"company_id,omitempty"`
	PeriodMonths int       `json:"period_months"`
	PeriodStart  time.Time `json:"period_start"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func (h Header) rows(t *table) {
	if h.CompanyID != "" {
		t.add("scope", "company_id", h.CompanyID)
	}
	t.add("scope", "period_months", h.PeriodMonths)
	t.add("scope", "period_start", h.PeriodStart.Format(time.RFC3339))
}

type AnnouncementCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Closed    int `json:"closed"`
	Cancelled int `json:"cancelled"`
}

func (c AnnouncementCounts) rows(t *table) {
	t.add("announcements", "total", c.Total)
	t.add("announcements", "active", c.Active)
	t.add("announcements", "closed", c.Closed)
	t.add("announcements", "cancelled", c.Cancelled)
}

type OfferCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func (c OfferCounts) rows(t *table) {
	t.add("offers", "total", c.Total)
	t.add("offers", "pending", c.Pending)
	t.add("offers", "accepted", c.Accepted)
	t.add("offers", "rejected", c.Rejected)
}

// AnnouncementSpread is the price spread an announcement received, per currency
type AnnouncementSpread struct {
	AnnouncementID string        `json:"announcement_id"`
	Title          string        `json:"title"`
	Offers         int           `json:"offers"`
	Spreads        []PriceSpread `json:"spreads"`
}

type RoutePerformance struct {
	Route         string  `json:"route"`
	Announcements int     `json:"announcements"`
	Offers        int     `json:"offers"`
	AvgOffers     float64 `json:"avg_offers"`
	Closed        int     `json:"closed"`
}

// CarrierStat ranks a logistics company
type CarrierStat struct {
	CompanyID string  `json:"company_id"`
	Name      string  `json:"name"`
	Offers    int     `json:"offers"`
	Accepted  int     `json:"accepted"`
	WinRate   int     `json:"win_rate"`
	Rating    float64 `json:"rating"`
}

func carrierRows(t *table, section string, stats []CarrierStat) {
	for i, c := range stats {
		key := fmt.Sprintf("%d:%s", i+1, c.Name)
		t.add(section, key+" offers", c.Offers)
		t.add(section, key+" accepted", c.Accepted)
		t.add(section, key+" win_rate", c.WinRate)
	}
}

type SupplierReport struct {
	Header
	Announcements            AnnouncementCounts   `json:"announcements"`
	OffersReceived           int                  `json:"offers_received"`
	AvgOffersPerAnnouncement float64              `json:"avg_offers_per_announcement"`
	PriceSpreads             []AnnouncementSpread `json:"price_spreads"`
	Routes                   []RoutePerformance   `json:"routes"`
	Monthly                  []MonthBucket        `json:"monthly"`
	TopCarriers              []CarrierStat        `json:"top_carriers"`
}

func (r *SupplierReport) Kind() Kind { return KindSupplier }

func (r *SupplierReport) Table() ([]string, [][]string) {
	var t table
	r.Header.rows(&t)
	r.Announcements.rows(&t)
	t.add("offers", "received", r.OffersReceived)
	t.add("offers", "avg_per_announcement", r.AvgOffersPerAnnouncement)
	for _, s := range r.PriceSpreads {
		section := "spread:" + s.AnnouncementID
		for _, p := range s.Spreads {
			t.add(section, p.Currency+" min", p.Min.StringFixed(2))
			t.add(section, p.Currency+" median", p.Median.StringFixed(2))
			t.add(section, p.Currency+" max", p.Max.StringFixed(2))
		}
	}
	for _, route := range r.Routes {
		t.add("route:"+route.Route, "announcements", route.Announcements)
		t.add("route:"+route.Route, "offers", route.Offers)
		t.add("route:"+route.Route, "avg_offers", route.AvgOffers)
	}
	t.monthly(r.Monthly)
	carrierRows(&t, "top_carriers", r.TopCarriers)
	return tableHeader, t
}

type TransportShare struct {
	TransportType string `json:"transport_type"`
	Items         int    `json:"items"`
	Share         int    `json:"share"`
}

type LogisticsReport struct {
	Header
	Offers             OfferCounts      `json:"offers"`
	WinRate            int              `json:"win_rate"`
	Trend              TrendDirection   `json:"trend"`
	AvgCompetitiveness int              `json:"avg_competitiveness"`
	Monthly            []MonthBucket    `json:"monthly"`
	TransportMix       []TransportShare `json:"transport_mix"`
	ShipmentsActive    int              `json:"shipments_active"`
	ShipmentsDelivered int              `json:"shipments_delivered"`
	AverageRating      float64          `json:"average_rating"`
	Reviews            int              `json:"reviews"`
}

func (r *LogisticsReport) Kind() Kind { return KindLogistics }

func (r *LogisticsReport) Table() ([]string, [][]string) {
	var t table
	r.Header.rows(&t)
	r.Offers.rows(&t)
	t.add("performance", "win_rate", r.WinRate)
	t.add("performance", "trend", string(r.Trend))
	t.add("performance", "avg_competitiveness", r.AvgCompetitiveness)
	for _, m := range r.TransportMix {
		t.add("transport_mix", m.TransportType, m.Share)
	}
	t.add("shipments", "active", r.ShipmentsActive)
	t.add("shipments", "delivered", r.ShipmentsDelivered)
	t.add("reviews", "count", r.Reviews)
	t.add("reviews", "average_rating", r.AverageRating)
	t.monthly(r.Monthly)
	return tableHeader, t
}

type CompanyCounts struct {
	Total     int `json:"total"`
	Suppliers int `json:"suppliers"`
	Logistics int `json:"logistics"`
	Verified  int `json:"verified"`
}

type ShipmentCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Delivered int `json:"delivered"`
}

type AdminReport struct {
	Header
	Companies     CompanyCounts      `json:"companies"`
	Users         int                `json:"users"`
	Announcements AnnouncementCounts `json:"announcements"`
	Offers        OfferCounts        `json:"offers"`
	Shipments     ShipmentCounts     `json:"shipments"`
	WinRate       int                `json:"win_rate"`
	Monthly       []MonthBucket      `json:"monthly"`
	Leaderboard   []CarrierStat      `json:"leaderboard"`
}

func (r *AdminReport) Kind() Kind { return KindAdmin }

func (r *AdminReport) Table() ([]string, [][]string) {
	var t table
	r.Header.rows(&t)
	t.add("companies", "total", r.Companies.Total)
	t.add("companies", "suppliers", r.Companies.Suppliers)
	t.add("companies", "logistics", r.Companies.Logistics)
	t.add("companies", "verified", r.Companies.Verified)
	t.add("users", "total", r.Users)
	r.Announcements.rows(&t)
	r.Offers.rows(&t)
	t.add("shipments", "total", r.Shipments.Total)
	t.add("shipments", "active", r.Shipments.Active)
	t.add("shipments", "delivered", r.Shipments.Delivered)
	t.add("performance", "win_rate", r.WinRate)
	t.monthly(r.Monthly)
	carrierRows(&t, "leaderboard", r.Leaderboard)
	return tableHeader, t
}

// EmployeeReport covers one user's own activity
type EmployeeReport struct {
	Header
	UserID        string             `json:"user_id"`
	Role          string             `json:"role"`
	Offers        OfferCounts        `json:"offers"`
	Announcements AnnouncementCounts `json:"announcements"`
	WinRate       int                `json:"win_rate"`
	Monthly       []MonthBucket      `json:"monthly"`
}

func (r *EmployeeReport) Kind() Kind { return KindEmployee }

func (r *EmployeeReport) Table() ([]string, [][]string) {
	var t table
	r.Header.rows(&t)
	t.add("employee", "user_id", r.UserID)
	t.add("employee", "role", r.Role)
	r.Offers.rows(&t)
	r.Announcements.rows(&t)
	t.add("performance", "win_rate", r.WinRate)
	t.monthly(r.Monthly)
	return tableHeader, t
}
