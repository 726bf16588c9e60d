// Package revenue converts revenue statistics and balance status records.
package revenue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/starledger/internal/amount"
	"github.com/mbd888/starledger/internal/anomaly"
	"github.com/mbd888/starledger/internal/api"
)

// DefaultUSDRate is reported when the server sends no usable rate.
var DefaultUSDRate = decimal.RequireFromString("1.3")

var (
	minUSDRate = decimal.New(1, -18)
	maxUSDRate = decimal.New(1, 18)
)

// Status is the withdrawable state of a revenue balance.
type Status struct {
	OverallCount      int64 `json:"overall_count"`
	CurrentCount      int64 `json:"current_count"`
	AvailableCount    int64 `json:"available_count"`
	WithdrawalEnabled bool  `json:"withdrawal_enabled"`
	NextWithdrawalIn  int32 `json:"next_withdrawal_in"`
}

// Statistics is the converted response of a revenue statistics call.
type Statistics struct {
	RevenueByDay Graph           `json:"revenue_by_day_graph"`
	Status       Status          `json:"status"`
	USDRate      decimal.Decimal `json:"usd_rate"`
}

// Converter turns server records into Status and Statistics. It reads the
// current time to express the next withdrawal as a countdown.
type Converter struct {
	now func() time.Time
}

// Option configures a Converter.
type Option func(*Converter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// NewConverter creates a converter using the wall clock by default.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status converts a balance status. The countdown is at least one second
// while a withdrawal is scheduled, and zero otherwise.
func (c *Converter) Status(ctx context.Context, s api.StarsRevenueStatus) Status {
	var nextIn int32
	if s.WithdrawalEnabled && s.NextWithdrawalAt > 0 {
		nextIn = max(s.NextWithdrawalAt-int32(c.now().Unix()), 1)
	}
	return Status{
		OverallCount:      amount.Normalize(ctx, s.OverallRevenue, false),
		CurrentCount:      amount.Normalize(ctx, s.CurrentBalance, false),
		AvailableCount:    amount.Normalize(ctx, s.AvailableBalance, false),
		WithdrawalEnabled: s.WithdrawalEnabled,
		NextWithdrawalIn:  nextIn,
	}
}

// Statistics converts a full statistics response.
func (c *Converter) Statistics(ctx context.Context, s api.StarsRevenueStats) Statistics {
	return Statistics{
		RevenueByDay: ConvertGraph(ctx, s.RevenueGraph),
		Status:       c.Status(ctx, s.Status),
		USDRate:      USDRate(s.USDRate),
	}
}

// USDRate converts the server rate, given per hundred stars, into a per-star
// rate kept within a sane range.
func USDRate(raw float64) decimal.Decimal {
	if raw <= 0 {
		return DefaultUSDRate
	}
	rate := decimal.NewFromFloat(raw).Mul(decimal.NewFromInt(100))
	switch {
	case rate.LessThan(minUSDRate):
		return minUSDRate
	case rate.GreaterThan(maxUSDRate):
		return maxUSDRate
	}
	return rate
}

// Graph is a statistics chart: GraphData, GraphAsync or GraphError.
type Graph interface {
	graph()
}

// GraphData is a ready chart in the ledger's JSON chart format.
type GraphData struct {
	JSON      string `json:"json_data"`
	ZoomToken string `json:"zoom_token,omitempty"`
}

// GraphAsync must be loaded later with Token.
type GraphAsync struct {
	Token string `json:"token"`
}

// GraphError is a chart the server failed to build.
type GraphError struct {
	Message string `json:"error_message"`
}

func (GraphData) graph()  {}
func (GraphAsync) graph() {}
func (GraphError) graph() {}

func (g GraphData) MarshalJSON() ([]byte, error) {
	type plain GraphData
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"data", plain(g)})
}

func (g GraphAsync) MarshalJSON() ([]byte, error) {
	type plain GraphAsync
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"async", plain(g)})
}

func (g GraphError) MarshalJSON() ([]byte, error) {
	type plain GraphError
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"error", plain(g)})
}

// ConvertGraph converts a chart record.
func ConvertGraph(ctx context.Context, g api.StatsGraph) Graph {
	switch g.Type {
	case api.StatsGraphData:
		return GraphData{JSON: string(g.JSON), ZoomToken: g.ZoomToken}
	case api.StatsGraphAsync:
		return GraphAsync{Token: g.Token}
	case api.StatsGraphError:
		return GraphError{Message: g.Error}
	}
	anomaly.Report(ctx, anomaly.UnknownGraphType, "receive unknown statistics graph", "type", g.Type)
	return GraphError{Message: "Unsupported graph"}
}
