// Package anomaly records server data that violates an expected invariant.
//
// Anomalies never change control flow: the caller falls back to a safe
// representation and keeps going. Each report is logged at error level and
// counted in starledger_decode_anomalies_total.
package anomaly

import (
	"context"

	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
)

// Kind classifies an anomaly for metrics and log filtering.
type Kind string

const (
	AmountOutOfRange       Kind = "star_amount_out_of_range"
	MissingWithdrawalState Kind = "missing_withdrawal_state"
	PeerBotMismatch        Kind = "peer_bot_mismatch"
	InvalidMessageID       Kind = "invalid_message_id"
	UnexpectedPeer         Kind = "unexpected_peer"
	UnexpectedBotPayload   Kind = "unexpected_bot_payload"
	LeftoverProductInfo    Kind = "leftover_product_info"
	LeftoverBotPayload     Kind = "leftover_bot_payload"
	LeftoverWithdrawal     Kind = "leftover_withdrawal_state"
	LeftoverMessageID      Kind = "leftover_message_id"
	UnknownPeerType        Kind = "unknown_peer_type"
	UnknownMediaType       Kind = "unknown_media_type"
	UnknownGraphType       Kind = "unknown_graph_type"
	UnmanageableUpdate     Kind = "unmanageable_revenue_update"
)

// Report logs and counts one anomaly.
func Report(ctx context.Context, kind Kind, msg string, args ...any) {
	metrics.AnomaliesTotal.WithLabelValues(string(kind)).Inc()
	logging.L(ctx).Error(msg, append([]any{"anomaly", string(kind)}, args...)...)
}
