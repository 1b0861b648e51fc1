package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxChunkDays is the hard platform limit: the Bybit history UI rejects
// date ranges of 6 days or more, so every chunk must span at most 5 days.
const MaxChunkDays = 5

// DateLayout is the wire format for dates throughout the application.
const DateLayout = "2006-01-02"

// Market identifies the market segment data is downloaded for.
type Market string

const (
	MarketSpot     Market = "spot"
	MarketContract Market = "contract"
)

// Dataset identifies the kind of historical data.
type Dataset string

const (
	DatasetTrades Dataset = "trades"
	DatasetL2Book Dataset = "l2book"
)

// ParseMarket normalizes user input into a Market. The aliases match what
// traders actually type for the derivatives segment.
func ParseMarket(s string) (Market, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return MarketSpot, nil
	case "contract", "derivatives", "perp", "futures":
		return MarketContract, nil
	}
	return "", fmt.Errorf("market must be 'spot' or 'contract', got %q", s)
}

// ParseDataset normalizes user input into a Dataset.
func ParseDataset(s string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trades", "trade":
		return DatasetTrades, nil
	case "l2book", "l2", "orderbook", "order_book":
		return DatasetL2Book, nil
	}
	return "", fmt.Errorf("dataset must be 'trades' or 'l2book', got %q", s)
}

// Request is a fully parsed download request. It is validated before any
// browser interaction happens.
type Request struct {
	Market    Market    `json:"market" validate:"required,oneof=spot contract"`
	Dataset   Dataset   `json:"dataset" validate:"required,oneof=trades l2book"`
	Symbol    string    `json:"symbol" validate:"required,uppercase"`
	Start     time.Time `json:"start" validate:"required"`
	End       time.Time `json:"end" validate:"required"`
	ChunkDays int       `json:"chunk_days" validate:"required,min=1,max=5"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces the request invariants. Every violation is reported as
// ErrInvalidConfiguration so callers can fail fast without launching a
// browser.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, err)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidConfiguration,
			r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// String renders the request the way it appears in log records and progress
// output, e.g. "spot-trades-BTCUSDT".
func (r Request) String() string {
	return fmt.Sprintf("%s-%s-%s", r.Market, r.Dataset, r.Symbol)
}
