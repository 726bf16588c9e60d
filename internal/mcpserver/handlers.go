package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/starledger/internal/dialog"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *StarsClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *StarsClient) *Handlers {
	return &Handlers{client: client}
}

// ownerArg reads the user_id/chat_id pair. Exactly one must be set.
func ownerArg(req mcp.CallToolRequest) (dialog.Sender, error) {
	owner := dialog.Sender{
		UserID: int64(req.GetInt("user_id", 0)),
		ChatID: int64(req.GetInt("chat_id", 0)),
	}
	if err := owner.Validate(); err != nil {
		return dialog.Sender{}, fmt.Errorf("set exactly one of user_id and chat_id")
	}
	return owner, nil
}

// HandleGetTopupOptions lists purchasable star packs.
func (h *Handlers) HandleGetTopupOptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.TopupOptions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get top-up options: %v", err)), nil
	}

	text, err := formatTopupOptions(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse top-up options: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListTransactions returns one page of star history.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.Transactions(ctx, owner,
		req.GetString("offset", ""),
		req.GetInt("limit", 20),
		req.GetString("direction", ""),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	text, err := formatTransactions(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleRefundPayment refunds a bot payment.
func (h *Handlers) HandleRefundPayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := int64(req.GetInt("user_id", 0))
	if userID <= 0 {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	chargeID := req.GetString("charge_id", "")
	if chargeID == "" {
		return mcp.NewToolResultError("charge_id is required"), nil
	}

	if _, err := h.client.Refund(ctx, userID, chargeID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Refund failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Refunded charge %s to user %d.", chargeID, userID)), nil
}

// HandleGetRevenueStats returns revenue balances of a bot or channel.
func (h *Handlers) HandleGetRevenueStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.RevenueStats(ctx, owner, req.GetBool("dark", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get revenue statistics: %v", err)), nil
	}

	text, err := formatRevenueStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse revenue statistics: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetWithdrawalURL requests a withdrawal link.
func (h *Handlers) HandleGetWithdrawalURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	starCount := int64(req.GetInt("star_count", -1))
	if starCount < 0 {
		return mcp.NewToolResultError("star_count must be non-negative"), nil
	}
	password := req.GetString("password", "")
	if password == "" {
		return mcp.NewToolResultError("password is required"), nil
	}

	raw, err := h.client.WithdrawalURL(ctx, owner, starCount, password)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get withdrawal link: %v", err)), nil
	}

	link, err := extractURL(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse withdrawal link: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Withdraw %d stars here:\n%s", starCount, link)), nil
}

// HandleGetAdsAccountURL returns the advertising account link.
func (h *Handlers) HandleGetAdsAccountURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.AdsAccountURL(ctx, owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get ads account link: %v", err)), nil
	}

	link, err := extractURL(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ads account link: %v", err)), nil
	}
	return mcp.NewToolResultText("Ads account:\n" + link), nil
}

// HandleListRevenueEvents lists pushed revenue balance changes.
func (h *Handlers) HandleListRevenueEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := ownerArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.RevenueEvents(ctx, owner, req.GetInt("limit", 50))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list revenue events: %v", err)), nil
	}

	text, err := formatRevenueEvents(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse revenue events: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// --- Formatting ---

func formatTopupOptions(raw json.RawMessage) (string, error) {
	var resp struct {
		Options []map[string]any `json:"options"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Options) == 0 {
		return "No star packs are available.", nil
	}

	var sb strings.Builder
	sb.WriteString("Star packs:\n")
	for _, o := range resp.Options {
		stars, _ := getFloat(o, "star_count")
		fmt.Fprintf(&sb, "  %.0f stars for %s %s", stars, getString(o, "display_amount"), getString(o, "currency"))
		if ext, _ := o["is_extended"].(bool); ext {
			sb.WriteString(" (more options)")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatTransactions(raw json.RawMessage) (string, error) {
	var page struct {
		StarCount    int64            `json:"star_count"`
		Transactions []map[string]any `json:"transactions"`
		NextOffset   string           `json:"next_offset"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Balance: %d stars\n", page.StarCount)
	if len(page.Transactions) == 0 {
		sb.WriteString("No transactions.\n")
	}
	for _, tx := range page.Transactions {
		stars, _ := getFloat(tx, "star_count")
		date, _ := getFloat(tx, "date")
		fmt.Fprintf(&sb, "  %+.0f stars  %s  %s",
			stars,
			time.Unix(int64(date), 0).UTC().Format("2006-01-02 15:04"),
			describePartner(tx["partner"]),
		)
		if refund, _ := tx["is_refund"].(bool); refund {
			sb.WriteString("  (refund)")
		}
		if id := getString(tx, "id"); id != "" {
			fmt.Fprintf(&sb, "  [%s]", id)
		}
		sb.WriteString("\n")
	}
	if page.NextOffset != "" {
		fmt.Fprintf(&sb, "\nMore available, next_offset: %s\n", page.NextOffset)
	}
	return sb.String(), nil
}

func describePartner(v any) string {
	p, ok := v.(map[string]any)
	if !ok {
		return "unknown"
	}
	switch kind := getString(p, "type"); kind {
	case "bot":
		id, _ := getFloat(p, "user_id")
		return fmt.Sprintf("bot %.0f", id)
	case "channel":
		id, _ := getFloat(p, "chat_id")
		return fmt.Sprintf("channel %.0f", id)
	case "fragment":
		state, _ := p["withdrawal_state"].(map[string]any)
		if s := getString(state, "type"); s != "" {
			return "fragment withdrawal, " + s
		}
		return "fragment"
	case "":
		return "unknown"
	default:
		return strings.ReplaceAll(kind, "_", " ")
	}
}

func formatRevenueStats(raw json.RawMessage) (string, error) {
	var stats map[string]any
	if err := json.Unmarshal(raw, &stats); err != nil {
		return "", err
	}
	status, _ := stats["status"].(map[string]any)

	var sb strings.Builder
	sb.WriteString("Star revenue:\n")
	sb.WriteString(formatStatus(status))
	if rate := getString(stats, "usd_rate"); rate != "" {
		fmt.Fprintf(&sb, "  USD per star: %s\n", rate)
	}
	if graph, ok := stats["revenue_by_day_graph"].(map[string]any); ok {
		switch getString(graph, "type") {
		case "async":
			sb.WriteString("  Daily graph: still loading\n")
		case "error":
			fmt.Fprintf(&sb, "  Daily graph: %s\n", getString(graph, "error_message"))
		case "data":
			sb.WriteString("  Daily graph: available\n")
		}
	}
	return sb.String(), nil
}

func formatStatus(status map[string]any) string {
	var sb strings.Builder
	current, _ := getFloat(status, "current_count")
	available, _ := getFloat(status, "available_count")
	overall, _ := getFloat(status, "overall_count")
	fmt.Fprintf(&sb, "  Current:   %.0f stars\n", current)
	fmt.Fprintf(&sb, "  Available: %.0f stars\n", available)
	fmt.Fprintf(&sb, "  Overall:   %.0f stars\n", overall)
	if enabled, _ := status["withdrawal_enabled"].(bool); enabled {
		if wait, _ := getFloat(status, "next_withdrawal_in"); wait > 0 {
			fmt.Fprintf(&sb, "  Withdrawal: possible in %s\n", time.Duration(wait)*time.Second)
		} else {
			sb.WriteString("  Withdrawal: possible now\n")
		}
	} else {
		sb.WriteString("  Withdrawal: disabled\n")
	}
	return sb.String()
}

func formatRevenueEvents(raw json.RawMessage) (string, error) {
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Events) == 0 {
		return "No revenue updates received yet.", nil
	}

	var sb strings.Builder
	for _, e := range resp.Events {
		fmt.Fprintf(&sb, "%s\n", getString(e, "received_at"))
		status, _ := e["status"].(map[string]any)
		sb.WriteString(formatStatus(status))
	}
	return sb.String(), nil
}

func extractURL(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if u := getString(resp, "url"); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no url in response: %s", string(raw))
}

// getString returns the first non-empty string value found under keys.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch val := v.(type) {
			case string:
				if val != "" {
					return val
				}
			case float64:
				return fmt.Sprintf("%g", val)
			}
		}
	}
	return ""
}

// getFloat returns the first numeric value found under keys.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch val := v.(type) {
			case float64:
				return val, true
			case string:
				var f float64
				if _, err := fmt.Sscanf(val, "%g", &f); err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}
