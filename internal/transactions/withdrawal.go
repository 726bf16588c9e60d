package transactions

import (
	"context"
	"encoding/json"

	"github.com/mbd888/starledger/internal/anomaly"
)

// WithdrawalState is the payout progress of a Fragment withdrawal. The
// concrete types are WithdrawalSucceeded, WithdrawalPending and
// WithdrawalFailed; a nil state means the server sent none.
type WithdrawalState interface {
	withdrawalState()
}

// WithdrawalSucceeded is a completed payout.
type WithdrawalSucceeded struct {
	Date int32  `json:"date"`
	URL  string `json:"url"`
}

// WithdrawalPending is a payout still in progress.
type WithdrawalPending struct{}

// WithdrawalFailed is a payout that did not go through.
type WithdrawalFailed struct{}

func (WithdrawalSucceeded) withdrawalState() {}
func (WithdrawalPending) withdrawalState()   {}
func (WithdrawalFailed) withdrawalState()    {}

func (s WithdrawalSucceeded) MarshalJSON() ([]byte, error) {
	type plain WithdrawalSucceeded
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"succeeded", plain(s)})
}

func (WithdrawalPending) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"pending"}`), nil
}

func (WithdrawalFailed) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"failed"}`), nil
}

// WithdrawalSignals are the raw withdrawal fields of a transaction record.
type WithdrawalSignals struct {
	SucceededAt  int32
	SucceededURL string
	Pending      bool
	Failed       bool
}

// Empty reports whether no signal is set.
func (s WithdrawalSignals) Empty() bool {
	return s == WithdrawalSignals{}
}

// ResolveWithdrawal picks the state with the highest priority and returns
// the signals it did not consume. Success outranks pending, which outranks
// failure. A record without any signal is an anomaly unless it is a refund.
func ResolveWithdrawal(ctx context.Context, s WithdrawalSignals, isRefund bool) (WithdrawalState, WithdrawalSignals) {
	switch {
	case s.SucceededAt > 0:
		state := WithdrawalSucceeded{Date: s.SucceededAt, URL: s.SucceededURL}
		s.SucceededAt, s.SucceededURL = 0, ""
		return state, s
	case s.Pending:
		s.Pending = false
		return WithdrawalPending{}, s
	case s.Failed:
		s.Failed = false
		return WithdrawalFailed{}, s
	case !isRefund:
		anomaly.Report(ctx, anomaly.MissingWithdrawalState, "receive withdrawal transaction without state")
	}
	return nil, s
}
