package models

import "time"

// DailyBar represents one day of OHLCV data for an instrument.
// At most one bar exists per (instrument, trade date).
type DailyBar struct {
	ID           int64     `json:"id" db:"id"`
	InstrumentID int       `json:"instrument_id" db:"instrument_id"`
	Date         time.Time `json:"date" db:"trade_date"`
	Open         float64   `json:"open" db:"open_price"`
	High         float64   `json:"high" db:"high_price"`
	Low          float64   `json:"low" db:"low_price"`
	Close        float64   `json:"close" db:"close_price"`
	Volume       int64     `json:"volume" db:"volume"`
	Turnover     *float64  `json:"turnover,omitempty" db:"turnover"`
	VWAP         *float64  `json:"vwap,omitempty" db:"vwap"`
	DeliveryQty  *int64    `json:"delivery_quantity,omitempty" db:"delivery_quantity"`
	DeliveryPct  *float64  `json:"delivery_percentage,omitempty" db:"delivery_percentage"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DateKey returns the trade date in YYYY-MM-DD form, the canonical
// key used for per-day comparisons.
func (b *DailyBar) DateKey() string {
	return b.Date.Format("2006-01-02")
}

// SameDate reports whether two calendar dates fall on the same day,
// ignoring time-of-day and timezone offsets.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOnly truncates a timestamp to midnight UTC of the same calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
