package models

import "time"

// Instrument represents a tracked equity from the instrument catalog.
// Rows are created by the catalog population process; the syncer only
// reads them.
type Instrument struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ISIN      string    `json:"isin,omitempty" db:"isin"`
	NSESymbol string    `json:"nse_symbol" db:"nse_symbol"`
	BSESymbol string    `json:"bse_symbol,omitempty" db:"bse_symbol"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Symbol returns the display symbol, preferring the NSE listing.
func (i *Instrument) Symbol() string {
	if i.NSESymbol != "" {
		return i.NSESymbol
	}
	return i.BSESymbol
}
