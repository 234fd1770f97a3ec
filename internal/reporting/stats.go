// Package reporting holds the pure math behind the marketplace reports and
// the typed report records returned for each kind.
package reporting

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TrendThreshold is the win-rate delta, in percentage points, that separates a trend from noise
const TrendThreshold = 5.0

// Supported report periods in months
var Periods = []int{1, 3, 6, 12}

const DefaultPeriod = 6

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// WinRate is round(100*accepted/total), or 0 without offers
func WinRate(accepted, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(accepted) / float64(total)))
}

// Median of the values; zero for an empty slice
func Median(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// PriceSpread summarizes the prices quoted in one currency
type PriceSpread struct {
	Currency string          `json:"currency"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Median   decimal.Decimal `json:"median"`
	Count    int             `json:"count"`
}

// Spread computes min, max and median; ok is false for no prices
func Spread(currency string, prices []decimal.Decimal) (PriceSpread, bool) {
	if len(prices) == 0 {
		return PriceSpread{Currency: currency}, false
	}

	s := PriceSpread{
		Currency: currency,
		Min:      decimal.Min(prices[0], prices[1:]...),
		Max:      decimal.Max(prices[0], prices[1:]...),
		Median:   Median(prices),
		Count:    len(prices),
	}
	return s, true
}

// Competitiveness scores price against the market range: 100 at the minimum,
// 0 at the maximum, 50 when the range is a single point
func Competitiveness(price, min, max decimal.Decimal) int {
	if max.Equal(min) {
		return 50
	}

	ratio := price.Sub(min).Div(max.Sub(min))
	score := decimal.NewFromInt(1).Sub(ratio)
	if score.LessThan(decimal.Zero) {
		score = decimal.Zero
	}
	if score.GreaterThan(decimal.NewFromInt(1)) {
		score = decimal.NewFromInt(1)
	}

	return int(score.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// NormalizePeriod maps anything unsupported to DefaultPeriod
func NormalizePeriod(months int) int {
	for _, p := range Periods {
		if p == months {
			return months
		}
	}
	return DefaultPeriod
}

// PeriodStart is the first instant of the oldest month in a window of months
// calendar months ending with the month of now
func PeriodStart(now time.Time, months int) time.Time {
	months = NormalizePeriod(months)
	now = now.UTC()
	return time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)
}

// MonthBucket aggregates one calendar month
type MonthBucket struct {
	Month         string    `json:"month"`
	Start         time.Time `json:"-"`
	Announcements int       `json:"announcements"`
	Offers        int       `json:"offers"`
	Accepted      int       `json:"accepted"`
	WinRate       int       `json:"win_rate"`
}

// MonthBuckets returns one empty bucket per month from PeriodStart through now
func MonthBuckets(now time.Time, months int) []MonthBucket {
	months = NormalizePeriod(months)
	start := PeriodStart(now, months)

	buckets := make([]MonthBucket, months)
	for i := range buckets {
		t := start.AddDate(0, i, 0)
		buckets[i] = MonthBucket{Month: t.Format("2006-01"), Start: t}
	}
	return buckets
}

// BucketIndex returns the bucket containing t, or -1
func BucketIndex(buckets []MonthBucket, t time.Time) int {
	key := t.UTC().Format("2006-01")
	for i, b := range buckets {
		if b.Month == key {
			return i
		}
	}
	return -1
}

// FinalizeWinRates fills WinRate from Offers and Accepted
func FinalizeWinRates(buckets []MonthBucket) {
	for i := range buckets {
		buckets[i].WinRate = WinRate(buckets[i].Accepted, buckets[i].Offers)
	}
}

// Trend compares the mean win rate of the earlier half of the buckets that
// have offers against the later half. With an odd count the middle bucket
// belongs to neither half.
func Trend(buckets []MonthBucket) TrendDirection {
	var rates []float64
	for _, b := range buckets {
		if b.Offers > 0 {
			rates = append(rates, float64(b.WinRate))
		}
	}
	if len(rates) < 2 {
		return TrendStable
	}

	half := len(rates) / 2
	diff := mean(rates[len(rates)-half:]) - mean(rates[:half])

	switch {
	case diff > TrendThreshold:
		return TrendImproving
	case diff < -TrendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
