package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the star ledger MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

func withOwner() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("user_id",
			mcp.Description("Id of the user or bot that owns the stars. Set exactly one of user_id and chat_id.")),
		mcp.WithNumber("chat_id",
			mcp.Description("Id of the channel that owns the stars. Set exactly one of user_id and chat_id.")),
	}
}

func newOwnerTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, withOwner()...)
	return mcp.NewTool(name, append(all, opts...)...)
}

var ToolGetTopupOptions = mcp.NewTool("get_topup_options",
	mcp.WithDescription(
		"List the star packs the account can buy, with their price in the local currency. "+
			"Use this before suggesting a star purchase."),
)

var ToolListTransactions = newOwnerTool("list_transactions",
	"List the star transactions of the account, one of its bots, or one of its channels. "+
		"Negative star counts are outgoing. Pass next_offset from a previous result to get the next page.",
	mcp.WithString("offset",
		mcp.Description("Opaque offset from a previous page. Empty for the first page.")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 20, max 100)")),
	mcp.WithString("direction",
		mcp.Description("Which transactions to return"),
		mcp.Enum("both", "incoming", "outgoing")),
)

var ToolRefundPayment = mcp.NewTool("refund_payment",
	mcp.WithDescription(
		"Refund a star payment received by the bot. The stars go back to the paying user. "+
			"Only bots can refund, using the charge id from the payment."),
	mcp.WithNumber("user_id",
		mcp.Required(),
		mcp.Description("Id of the user who paid")),
	mcp.WithString("charge_id",
		mcp.Required(),
		mcp.Description("Charge identifier of the payment to refund")),
)

var ToolGetRevenueStats = newOwnerTool("get_revenue_stats",
	"Get the star revenue of a bot or channel owned by the account: current, available and "+
		"overall balances, whether withdrawal is possible and the star to USD rate.",
	mcp.WithBoolean("dark",
		mcp.Description("Request the revenue graph in dark theme")),
)

var ToolGetWithdrawalURL = newOwnerTool("get_withdrawal_url",
	"Get a link to withdraw revenue stars of a bot or channel owned by the account. "+
		"Requires the account's two-step verification password.",
	mcp.WithNumber("star_count",
		mcp.Required(),
		mcp.Description("Number of stars to withdraw")),
	mcp.WithString("password",
		mcp.Required(),
		mcp.Description("The account's two-step verification password")),
)

var ToolGetAdsAccountURL = newOwnerTool("get_ads_account_url",
	"Get a link to the advertising account that spends the revenue stars of a bot or channel.",
)

var ToolListRevenueEvents = newOwnerTool("list_revenue_events",
	"List the latest revenue balance changes pushed for a bot or channel, newest first.",
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 50)")),
)
