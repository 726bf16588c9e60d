package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all star ledger tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("starledger", "1.0.0")
	h := NewHandlers(NewStarsClient(cfg))

	s.AddTool(ToolGetTopupOptions, h.HandleGetTopupOptions)
	s.AddTool(ToolListTransactions, h.HandleListTransactions)
	s.AddTool(ToolRefundPayment, h.HandleRefundPayment)
	s.AddTool(ToolGetRevenueStats, h.HandleGetRevenueStats)
	s.AddTool(ToolGetWithdrawalURL, h.HandleGetWithdrawalURL)
	s.AddTool(ToolGetAdsAccountURL, h.HandleGetAdsAccountURL)
	s.AddTool(ToolListRevenueEvents, h.HandleListRevenueEvents)

	return s
}
