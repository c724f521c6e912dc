package cnn

import (
	"context"
	"fmt"
	"time"

	"github.com/finwire/weblib/httpclient"
	"github.com/finwire/weblib/logger"
)

const graphDataURL = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"

// Reading is a single measurement of the Fear & Greed index or one of its
// component indicators.
type Reading struct {
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
	Rating string    `json:"rating"`
}

// Status is the full Fear & Greed picture: the headline index, the
// historical series, and the component indicators CNN publishes alongside.
type Status struct {
	Current Reading   `json:"current"`
	History []Reading `json:"history"`
	// MarketMomentum tracks the S&P 500 against its 125-day moving average.
	MarketMomentum Reading `json:"market_momentum"`
	// StockPriceStrength tracks net new 52-week highs versus lows.
	StockPriceStrength Reading `json:"stock_price_strength"`
	// StockPriceBreadth tracks the McClellan Summation Index.
	StockPriceBreadth Reading `json:"stock_price_breadth"`
	// PutCallOptions tracks the put/call ratio.
	PutCallOptions Reading `json:"put_call_options"`
	PreviousClose  float64 `json:"previous_close"`
	Previous1Week  float64 `json:"previous_1_week"`
}

// FearAndGreed retrieves and decodes the CNN Fear & Greed index.
type FearAndGreed struct {
	api    *API
	logger logger.Logger
}

// NewFearAndGreed creates the service with its own CNN API caller.
func NewFearAndGreed(log logger.Logger) *FearAndGreed {
	return NewFearAndGreedWithAPI(log, New(log))
}

// NewFearAndGreedWithAPI creates the service on an existing API caller.
func NewFearAndGreedWithAPI(log logger.Logger, api *API) *FearAndGreed {
	return &FearAndGreed{api: api, logger: log}
}

// FetchLatest returns the current index plus its 125-day historical window.
func (f *FearAndGreed) FetchLatest(ctx context.Context, opts *httpclient.Options) (*Status, error) {
	return f.fetch(ctx, graphDataURL, opts)
}

// FetchAtDate returns the index as recorded on a given date (YYYY-MM-DD).
func (f *FearAndGreed) FetchAtDate(ctx context.Context, date string, opts *httpclient.Options) (*Status, error) {
	return f.fetch(ctx, graphDataURL+"/"+date, opts)
}

func (f *FearAndGreed) fetch(ctx context.Context, url string, opts *httpclient.Options) (*Status, error) {
	raw, err := f.api.Call(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	status, err := mapGraphData(raw, url)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("Unexpected fear and greed document shape")
		return nil, err
	}
	return status, nil
}

// mapGraphData transforms CNN's graphdata document into a Status. The
// historical series uses x (epoch milliseconds) / y (value) pairs; the
// headline block uses an RFC 3339 timestamp.
func mapGraphData(payload map[string]any, url string) (*Status, error) {
	primary, ok := payload["fear_and_greed"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response from %s missing fear_and_greed block", url)
	}

	status := &Status{
		Current: Reading{
			Date:   parseRFC3339(primary["timestamp"]),
			Value:  asFloat(primary["score"]),
			Rating: asRating(primary["rating"]),
		},
		MarketMomentum:     extractIndicator(payload, "market_momentum_sp500"),
		StockPriceStrength: extractIndicator(payload, "stock_price_strength"),
		StockPriceBreadth:  extractIndicator(payload, "stock_price_breadth"),
		PutCallOptions:     extractIndicator(payload, "put_call_options"),
		PreviousClose:      asFloat(primary["previous_close"]),
		Previous1Week:      asFloat(primary["previous_1_week"]),
	}

	if historical, ok := payload["fear_and_greed_historical"].(map[string]any); ok {
		if points, ok := historical["data"].([]any); ok {
			status.History = make([]Reading, 0, len(points))
			for _, p := range points {
				point, ok := p.(map[string]any)
				if !ok {
					continue
				}
				x, okX := point["x"].(float64)
				y, okY := point["y"].(float64)
				if !okX || !okY {
					continue
				}
				status.History = append(status.History, Reading{
					Date:   time.UnixMilli(int64(x)).UTC(),
					Value:  y,
					Rating: asRating(point["rating"]),
				})
			}
		}
	}

	return status, nil
}

// extractIndicator decodes one component indicator block: timestamp in
// epoch milliseconds, score, rating.
func extractIndicator(payload map[string]any, key string) Reading {
	block, ok := payload[key].(map[string]any)
	if !ok {
		return Reading{Rating: "unknown"}
	}
	r := Reading{
		Value:  asFloat(block["score"]),
		Rating: asRating(block["rating"]),
	}
	if ts, ok := block["timestamp"].(float64); ok {
		r.Date = time.UnixMilli(int64(ts)).UTC()
	}
	return r
}

func parseRFC3339(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asRating(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "unknown"
}
