package nasdaq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finwire/weblib/httpclient"
	"github.com/finwire/weblib/logger"
)

const marketInfoEndpoint = "market-info/"

// tradeDateLayout matches the next_trade_date format, e.g. "Feb 24, 2026".
const tradeDateLayout = "Jan 2, 2006"

// MarketStatusData is the typed "data" block of the market-info endpoint.
type MarketStatusData struct {
	Country                     string `json:"country"`
	MarketIndicator             string `json:"marketIndicator"`
	UIMarketIndicator           string `json:"uiMarketIndicator"`
	MarketCountDown             string `json:"marketCountDown"`
	PreMarketOpeningTime        string `json:"preMarketOpeningTime"`
	PreMarketClosingTime        string `json:"preMarketClosingTime"`
	MarketOpeningTime           string `json:"marketOpeningTime"`
	MarketClosingTime           string `json:"marketClosingTime"`
	AfterHoursMarketOpeningTime string `json:"afterHoursMarketOpeningTime"`
	AfterHoursMarketClosingTime string `json:"afterHoursMarketClosingTime"`
	PreviousTradeDate           string `json:"previousTradeDate"`
	NextTradeDate               string `json:"nextTradeDate"`
	IsBusinessDay               bool   `json:"isBusinessDay"`
	MrktStatus                  string `json:"mrktStatus"`
}

// MarketStatus fetches and analyzes Nasdaq market session state. Session
// calculations take an explicit clock value so callers and tests control
// the reference time.
type MarketStatus struct {
	api     *API
	logger  logger.Logger
	eastern *time.Location
}

// NewMarketStatus creates the service with its own Nasdaq API caller.
func NewMarketStatus(log logger.Logger) *MarketStatus {
	return NewMarketStatusWithAPI(log, New(log))
}

// NewMarketStatusWithAPI creates the service on an existing API caller.
func NewMarketStatusWithAPI(log logger.Logger, api *API) *MarketStatus {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The IANA database ships with the Go toolchain; treat absence as a
		// broken deployment.
		panic(fmt.Sprintf("load America/New_York: %v", err))
	}
	return &MarketStatus{api: api, logger: log, eastern: loc}
}

// FetchRaw returns the full market-info payload without interpretation.
func (m *MarketStatus) FetchRaw(ctx context.Context, opts *httpclient.Options) (map[string]any, error) {
	return m.api.Call(ctx, marketInfoEndpoint, opts)
}

// FetchStatus fetches market-info and decodes its "data" block.
func (m *MarketStatus) FetchStatus(ctx context.Context, opts *httpclient.Options) (*MarketStatusData, error) {
	return m.fetchStatusFrom(ctx, marketInfoEndpoint, opts)
}

func (m *MarketStatus) fetchStatusFrom(ctx context.Context, endpoint string, opts *httpclient.Options) (*MarketStatusData, error) {
	payload, err := m.api.Call(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}

	status, err := decodeStatus(payload)
	if err != nil {
		m.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Failed to decode market status data")
		return nil, err
	}
	return status, nil
}

// decodeStatus re-encodes the generic "data" block into the typed struct.
func decodeStatus(payload map[string]any) (*MarketStatusData, error) {
	data, ok := payload["data"]
	if !ok || data == nil {
		return nil, fmt.Errorf("market-info response missing data field")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode market-info data: %w", err)
	}

	var status MarketStatusData
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode market-info data: %w", err)
	}
	return &status, nil
}

// IsRegularSession reports whether now falls inside the regular trading
// session: a business day between 09:30 and 16:00 Eastern.
func (m *MarketStatus) IsRegularSession(status *MarketStatusData, now time.Time) bool {
	if !status.IsBusinessDay {
		return false
	}
	et := now.In(m.eastern)
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, m.eastern)
	closing := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, m.eastern)
	return !et.Before(open) && et.Before(closing)
}

// NextOpeningDelay computes the time until 09:30 Eastern on the reported
// next trade date. A zero duration means the recorded date is stale and the
// caller should refresh.
func (m *MarketStatus) NextOpeningDelay(status *MarketStatusData, now time.Time) (time.Duration, error) {
	d, err := time.ParseInLocation(tradeDateLayout, status.NextTradeDate, m.eastern)
	if err != nil {
		return 0, fmt.Errorf("failed to parse next trade date %q: %w", status.NextTradeDate, err)
	}

	target := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, m.eastern)
	delay := target.Sub(now)
	if delay < 0 {
		return 0, nil
	}
	return delay, nil
}

// WaitUntilOpen blocks until the next market opening or context cancellation.
// Returns immediately when the market is already open or the delay is stale.
func (m *MarketStatus) WaitUntilOpen(ctx context.Context, status *MarketStatusData) error {
	delay, err := m.NextOpeningDelay(status, time.Now())
	if err != nil || delay == 0 {
		return err
	}

	m.logger.Info().
		Str("wait_time", FormatDuration(delay)).
		Msg("Waiting for market opening")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		m.logger.Info().Msg("Market opening time reached")
		return nil
	}
}

// FormatDuration renders a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs < 0 {
		secs = -secs
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
