package reporting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		accepted, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{5, 5, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WinRate(tt.accepted, tt.total), "%d/%d", tt.accepted, tt.total)
	}
}

func TestMedian(t *testing.T) {
	assert.True(t, Median(nil).IsZero())
	assert.Equal(t, "120", Median(decs("300", "100", "120")).String())
	assert.Equal(t, "110", Median(decs("120", "100")).String())
	assert.Equal(t, "150.5", Median(decs("100", "200", "101", "400")).String())
}

func TestSpread(t *testing.T) {
	_, ok := Spread("USD", nil)
	assert.False(t, ok)

	s, ok := Spread("USD", decs("120", "100", "300"))
	require.True(t, ok)
	assert.Equal(t, "100", s.Min.String())
	assert.Equal(t, "300", s.Max.String())
	assert.Equal(t, "120", s.Median.String())
	assert.Equal(t, 3, s.Count)
}

func TestCompetitiveness(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name            string
		price, min, max string
		want            int
	}{
		{"at minimum", "100", "100", "200", 100},
		{"at maximum", "200", "100", "200", 0},
		{"midpoint", "150", "100", "200", 50},
		{"flat market", "90", "90", "90", 50},
		{"below minimum clamps", "50", "100", "200", 100},
		{"above maximum clamps", "250", "100", "200", 0},
		{"rounds", "133", "100", "200", 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Competitiveness(d(tt.price), d(tt.min), d(tt.max)))
		})
	}
}

func TestCompetitivenessBounds(t *testing.T) {
	min := decimal.NewFromInt(10)
	max := decimal.NewFromInt(47)
	for p := int64(10); p <= 47; p++ {
		score := Competitiveness(decimal.NewFromInt(p), min, max)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}

func TestMonthBuckets(t *testing.T) {
	now := time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)

	for _, months := range Periods {
		buckets := MonthBuckets(now, months)
		require.Len(t, buckets, months)
		assert.Equal(t, "2025-02", buckets[len(buckets)-1].Month)
	}

	buckets := MonthBuckets(now, 6)
	assert.Equal(t, "2024-09", buckets[0].Month)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), PeriodStart(now, 6))

	assert.Len(t, MonthBuckets(now, 7), DefaultPeriod, "unsupported period falls back")
	assert.Equal(t, 5, BucketIndex(buckets, now))
	assert.Equal(t, -1, BucketIndex(buckets, now.AddDate(1, 0, 0)))
}

func TestTrend(t *testing.T) {
	bucket := func(offers, accepted int) MonthBucket {
		return MonthBucket{Offers: offers, Accepted: accepted, WinRate: WinRate(accepted, offers)}
	}

	tests := []struct {
		name    string
		buckets []MonthBucket
		want    TrendDirection
	}{
		{"no data", []MonthBucket{{}, {}}, TrendStable},
		{"single month", []MonthBucket{bucket(4, 4)}, TrendStable},
		{"improving", []MonthBucket{bucket(10, 1), bucket(10, 2), bucket(10, 5), bucket(10, 6)}, TrendImproving},
		{"declining", []MonthBucket{bucket(10, 8), bucket(10, 2)}, TrendDeclining},
		{"within threshold", []MonthBucket{bucket(20, 10), bucket(20, 11)}, TrendStable},
		{"empty months ignored", []MonthBucket{bucket(10, 1), {}, {}, bucket(10, 9)}, TrendImproving},
		{"middle month left out", []MonthBucket{bucket(10, 1), bucket(10, 8), bucket(50, 7)}, TrendStable},
		{"odd count", []MonthBucket{bucket(10, 9), bucket(10, 5), bucket(10, 1)}, TrendDeclining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Trend(tt.buckets))
		})
	}
}

func TestReportTable(t *testing.T) {
	r := &LogisticsReport{
		Header:  Header{CompanyID: "cmp-1", PeriodMonths: 3},
		Offers:  OfferCounts{Total: 4, Accepted: 1, Rejected: 3},
		WinRate: 25,
		Trend:   TrendStable,
		Monthly: MonthBuckets(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3),
	}

	header, rows := r.Table()
	assert.Equal(t, []string{"section", "metric", "value"}, header)
	assert.Contains(t, rows, []string{"performance", "win_rate", "25"})
	assert.Contains(t, rows, []string{"monthly:2024-11", "offers", "0"})
	assert.Equal(t, KindLogistics, r.Kind())

	k, ok := ParseKind("admin")
	assert.True(t, ok)
	assert.Equal(t, KindAdmin, k)
	_, ok = ParseKind("finance")
	assert.False(t, ok)
}
