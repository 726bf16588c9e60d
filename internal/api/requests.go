// Package api defines the wire schema of the star ledger RPC: request
// encoders with their optional-field bitmasks and the raw records the server
// returns. Nothing in this package validates server data; that is the job of
// the decoders that consume these types.
package api

import (
	"encoding/json"
	"fmt"
)

// Payload is one encoded request as handed to the transport.
//
// Flags carries a bit for every optional field that is present. Optional
// fields that are absent are omitted from Body entirely, and flag-only
// booleans travel in Flags alone.
type Payload struct {
	Method string          `json:"method"`
	Flags  int32           `json:"flags"`
	Body   json.RawMessage `json:"params"`
}

// Request is implemented by every outbound call.
type Request interface {
	Method() string
	Flags() int32
}

// Encode serializes r into a Payload.
func Encode(r Request) (Payload, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Payload{}, fmt.Errorf("encode %s: %w", r.Method(), err)
	}
	return Payload{Method: r.Method(), Flags: r.Flags(), Body: body}, nil
}

// flagSet accumulates presence bits.
type flagSet int32

func (f *flagSet) set(mask int32, present bool) {
	if present {
		*f |= flagSet(mask)
	}
}

// InputPeer is a dialog reference the server accepts, with its access hash.
type InputPeer struct {
	Type       string `json:"@type"` // inputPeerUser, inputPeerChat, inputPeerChannel, inputPeerSelf
	UserID     int64  `json:"user_id,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ChannelID  int64  `json:"channel_id,omitempty"`
	AccessHash int64  `json:"access_hash,omitempty"`
}

// InputUser is a user reference the server accepts.
type InputUser struct {
	UserID     int64 `json:"user_id"`
	AccessHash int64 `json:"access_hash"`
}

// InputCheckPassword is the proof artifact produced by password verification.
type InputCheckPassword struct {
	SRPID int64  `json:"srp_id"`
	A     []byte `json:"A"`
	M1    []byte `json:"M1"`
}

// GetStarsTopupOptions lists purchasable star packs.
type GetStarsTopupOptions struct{}

func (GetStarsTopupOptions) Method() string { return "payments.getStarsTopupOptions" }
func (GetStarsTopupOptions) Flags() int32   { return 0 }

// Presence bits of GetStarsTransactions.
const (
	GetStarsTransactionsInbound   int32 = 1 << 0
	GetStarsTransactionsOutbound  int32 = 1 << 1
	GetStarsTransactionsAscending int32 = 1 << 2
)

// GetStarsTransactions pages through the transaction history of Peer.
type GetStarsTransactions struct {
	Inbound   bool      `json:"-"`
	Outbound  bool      `json:"-"`
	Ascending bool      `json:"-"`
	Peer      InputPeer `json:"peer"`
	Offset    string    `json:"offset"`
	Limit     int32     `json:"limit"`
}

func (GetStarsTransactions) Method() string { return "payments.getStarsTransactions" }

func (r GetStarsTransactions) Flags() int32 {
	var f flagSet
	f.set(GetStarsTransactionsInbound, r.Inbound)
	f.set(GetStarsTransactionsOutbound, r.Outbound)
	f.set(GetStarsTransactionsAscending, r.Ascending)
	return int32(f)
}

// RefundStarsCharge refunds a payment a user made to the calling bot.
type RefundStarsCharge struct {
	UserID   InputUser `json:"user_id"`
	ChargeID string    `json:"charge_id"`
}

func (RefundStarsCharge) Method() string { return "payments.refundStarsCharge" }
func (RefundStarsCharge) Flags() int32   { return 0 }

// GetStarsRevenueStatsDark requests the dark-theme revenue graph.
const GetStarsRevenueStatsDark int32 = 1 << 0

// GetStarsRevenueStats fetches revenue statistics of Peer.
type GetStarsRevenueStats struct {
	Dark bool      `json:"-"`
	Peer InputPeer `json:"peer"`
}

func (GetStarsRevenueStats) Method() string { return "payments.getStarsRevenueStats" }

func (r GetStarsRevenueStats) Flags() int32 {
	var f flagSet
	f.set(GetStarsRevenueStatsDark, r.Dark)
	return int32(f)
}

// GetStarsRevenueWithdrawalURL asks for a URL to withdraw Stars from Peer.
type GetStarsRevenueWithdrawalURL struct {
	Peer     InputPeer          `json:"peer"`
	Stars    int64              `json:"stars"`
	Password InputCheckPassword `json:"password"`
}

func (GetStarsRevenueWithdrawalURL) Method() string { return "payments.getStarsRevenueWithdrawalUrl" }
func (GetStarsRevenueWithdrawalURL) Flags() int32   { return 0 }

// GetStarsRevenueAdsAccountURL asks for the ad account URL of Peer.
type GetStarsRevenueAdsAccountURL struct {
	Peer InputPeer `json:"peer"`
}

func (GetStarsRevenueAdsAccountURL) Method() string { return "payments.getStarsRevenueAdsAccountUrl" }
func (GetStarsRevenueAdsAccountURL) Flags() int32   { return 0 }

// GetPassword fetches the current password parameters of the account.
type GetPassword struct{}

func (GetPassword) Method() string { return "account.getPassword" }
func (GetPassword) Flags() int32   { return 0 }
