package stars

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/starledger/internal/access"
	"github.com/mbd888/starledger/internal/anomaly"
	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/credential"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/directory"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/mbd888/starledger/internal/query"
	"github.com/mbd888/starledger/internal/revenue"
	"github.com/mbd888/starledger/internal/transactions"
	"github.com/mbd888/starledger/internal/updates"
)

const myID = 1

// fakeLedger answers each method with a canned body or error and records
// every payload it receives.
type fakeLedger struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []api.Payload
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeLedger) Issue(_ context.Context, p api.Payload) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if err, ok := f.errs[p.Method]; ok {
		return nil, err
	}
	body, ok := f.responses[p.Method]
	if !ok {
		return nil, apierror.New(400, "METHOD_INVALID")
	}
	return []byte(body), nil
}

func (f *fakeLedger) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeLedger) last(t *testing.T) api.Payload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []updates.Event
}

func (s *recordingSink) Publish(_ context.Context, e updates.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []updates.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]updates.Event(nil), s.events...)
}

type env struct {
	ledger  *fakeLedger
	runner  *query.Runner
	dir     *directory.Directory
	sink    *recordingSink
	manager *Manager
}

var fixedNow = time.Unix(1_700_000_000, 0)

func newEnv(t *testing.T, callerIsBot bool) *env {
	t.Helper()
	ctx := context.Background()

	store := directory.NewMemoryStore()
	require.NoError(t, store.UpsertUsers(ctx, []api.User{
		{ID: myID, Self: true, Bot: callerIsBot},
		{ID: 100, AccessHash: 11, Bot: true, BotCanEdit: true},
		{ID: 200, AccessHash: 22},
	}))
	require.NoError(t, store.UpsertChats(ctx, []api.Chat{
		{Type: api.ChatTypeChannel, ID: 300, AccessHash: 33, Broadcast: true, Creator: true},
		{Type: api.ChatTypeChannel, ID: 400, AccessHash: 44, Broadcast: true},
		{Type: api.ChatTypeChannel, ID: 500, AccessHash: 55, Megagroup: true},
		{Type: api.ChatTypeChat, ID: 600},
	}))

	e := &env{ledger: newFakeLedger(), sink: &recordingSink{}}
	e.runner = query.NewRunner(e.ledger)
	t.Cleanup(e.runner.Close)
	e.dir = directory.New(store, myID, callerIsBot)
	e.manager = NewManager(e.runner, e.dir, credential.NewRemoteVerifier(e.runner),
		WithSink(e.sink),
		WithClock(func() time.Time { return fixedNow }),
		WithConverter(revenue.NewConverter(revenue.WithClock(func() time.Time { return fixedNow }))),
	)
	return e
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestGetTransactions_FragmentWithdrawalSucceeded(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsTransactions"] = `{
		"balance": 1500,
		"history": [{
			"id": "tx1", "stars": -1000, "date": 1700,
			"peer": {"@type": "starsTransactionPeerFragment"},
			"transaction_date": 1000, "transaction_url": "https://x"
		}],
		"next_offset": "page2",
		"users": [{"id": 700, "bot": true}]
	}`

	page, err := e.manager.GetTransactions(context.Background(), dialog.Sender{ChatID: 300}, "", 20, DirectionIncoming)
	require.NoError(t, err)

	require.Len(t, page.Transactions, 1)
	assert.Equal(t, transactions.Transaction{
		ID:        "tx1",
		StarCount: -1000,
		Date:      1700,
		Partner:   transactions.PartnerFragment{State: transactions.WithdrawalSucceeded{Date: 1000, URL: "https://x"}},
	}, page.Transactions[0])
	assert.Equal(t, int64(1500), page.StarCount)
	assert.Equal(t, "page2", page.NextOffset)

	p := e.ledger.last(t)
	assert.Equal(t, "payments.getStarsTransactions", p.Method)
	assert.Equal(t, api.GetStarsTransactionsInbound, p.Flags)
	assert.JSONEq(t, `{"peer":{"@type":"inputPeerChannel","channel_id":300,"access_hash":33},"offset":"","limit":20}`, string(p.Body))

	// Embedded users are committed before the future completes.
	_, ok := e.dir.User(context.Background(), 700)
	assert.True(t, ok)
}

func TestGetTransactions_Flags(t *testing.T) {
	tests := []struct {
		name      string
		bot       bool
		owner     dialog.Sender
		direction Direction
		wantFlags int32
		wantPeer  string
	}{
		{"user both", false, dialog.Sender{UserID: myID}, DirectionBoth, 0, "inputPeerSelf"},
		{"user outgoing", false, dialog.Sender{UserID: myID}, DirectionOutgoing, api.GetStarsTransactionsOutbound, "inputPeerSelf"},
		{"bot ascending", true, dialog.Sender{UserID: myID}, DirectionIncoming,
			api.GetStarsTransactionsInbound | api.GetStarsTransactionsAscending, "inputPeerSelf"},
		{"owned bot", false, dialog.Sender{UserID: 100}, DirectionBoth, 0, "inputPeerUser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.bot)
			e.ledger.responses["payments.getStarsTransactions"] = `{"balance":0,"history":[]}`

			_, err := e.manager.GetTransactions(context.Background(), tt.owner, "", 10, tt.direction)
			require.NoError(t, err)

			p := e.ledger.last(t)
			assert.Equal(t, tt.wantFlags, p.Flags)
			var body struct {
				Peer api.InputPeer `json:"peer"`
			}
			require.NoError(t, json.Unmarshal(p.Body, &body))
			assert.Equal(t, tt.wantPeer, body.Peer.Type)
		})
	}
}

func TestGetTransactions_RejectedBeforeSending(t *testing.T) {
	tests := []struct {
		name  string
		owner dialog.Sender
		limit int32
		want  *apierror.Error
	}{
		{"negative limit", dialog.Sender{ChatID: 300}, -1, ErrNegativeLimit},
		{"ambiguous owner", dialog.Sender{UserID: myID, ChatID: 300}, 10, ErrInvalidSender},
		{"unknown owner", dialog.Sender{ChatID: 999}, 10, ErrUnknownSender},
		{"other user", dialog.Sender{UserID: 200}, 10, apierror.New(400, access.ReasonBotNotOwned)},
		{"supergroup", dialog.Sender{ChatID: 500}, 10, apierror.New(400, access.ReasonNotChannel)},
		{"basic group", dialog.Sender{ChatID: 600}, 10, apierror.New(400, access.ReasonUnallowedChat)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, false)
			_, err := e.manager.GetTransactions(context.Background(), tt.owner, "", tt.limit, DirectionBoth)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, e.ledger.methods())
		})
	}
}

func TestGetTransactions_NonCreatorAllowedForHistory(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsTransactions"] = `{"balance":3,"history":[]}`

	page, err := e.manager.GetTransactions(context.Background(), dialog.Sender{ChatID: 400}, "", 5, DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.StarCount)
}

func TestGetTransactions_TransportErrorObserved(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.errs["payments.getStarsTransactions"] = apierror.New(400, "CHANNEL_PRIVATE")
	counter := metrics.DialogErrorsTotal.WithLabelValues("payments.getStarsTransactions", "400")
	before := counterValue(t, counter)

	_, err := e.manager.GetTransactions(context.Background(), dialog.Sender{ChatID: 300}, "", 5, DirectionBoth)
	assert.ErrorIs(t, err, apierror.New(400, "CHANNEL_PRIVATE"))
	assert.Equal(t, before+1, counterValue(t, counter))
}

func TestGetRevenueStatistics(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsRevenueStats"] = `{
		"revenue_graph": {"@type": "statsGraphAsync", "token": "tk"},
		"status": {"withdrawal_enabled": true, "current_balance": 50, "available_balance": 40,
			"overall_revenue": 90, "next_withdrawal_at": 1700000100},
		"usd_rate": 0.013
	}`

	stats, err := e.manager.GetRevenueStatistics(context.Background(), dialog.Sender{ChatID: 300}, true)
	require.NoError(t, err)

	assert.Equal(t, revenue.GraphAsync{Token: "tk"}, stats.RevenueByDay)
	assert.Equal(t, revenue.Status{
		OverallCount:      90,
		CurrentCount:      50,
		AvailableCount:    40,
		WithdrawalEnabled: true,
		NextWithdrawalIn:  100,
	}, stats.Status)
	assert.True(t, stats.USDRate.Equal(decimal.RequireFromString("1.3")), "usd rate %s", stats.USDRate)
	assert.Equal(t, api.GetStarsRevenueStatsDark, e.ledger.last(t).Flags)
}

func TestGetRevenueStatistics_NonCreatorDenied(t *testing.T) {
	e := newEnv(t, false)

	_, err := e.manager.GetRevenueStatistics(context.Background(), dialog.Sender{ChatID: 400}, false)
	assert.ErrorIs(t, err, apierror.New(400, "Not enough rights"))
	assert.Empty(t, e.ledger.methods())
}

func TestGetRevenueStatistics_SelfNotAllowed(t *testing.T) {
	e := newEnv(t, false)

	_, err := e.manager.GetRevenueStatistics(context.Background(), dialog.Sender{UserID: myID}, false)
	assert.ErrorIs(t, err, apierror.New(400, access.ReasonBotNotOwned))
}

func TestGetWithdrawalURL(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["account.getPassword"] = `{"has_password":true,"srp_id":9,"salt":"c2FsdA==","iterations":1}`
	e.ledger.responses["payments.getStarsRevenueWithdrawalUrl"] = `{"url":"https://fragment/withdraw"}`

	url, err := e.manager.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, 500, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "https://fragment/withdraw", url)
	assert.Equal(t, []string{"account.getPassword", "payments.getStarsRevenueWithdrawalUrl"}, e.ledger.methods())

	var body api.GetStarsRevenueWithdrawalURL
	require.NoError(t, json.Unmarshal(e.ledger.last(t).Body, &body))
	assert.Equal(t, int64(500), body.Stars)
	assert.Equal(t, int64(9), body.Password.SRPID)
	assert.NotEmpty(t, body.Password.M1)
}

func TestGetWithdrawalURL_EmptyPasswordIssuesNoRequest(t *testing.T) {
	e := newEnv(t, false)

	_, err := e.manager.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, 500, "")
	assert.ErrorIs(t, err, apierror.New(400, "PASSWORD_HASH_INVALID"))
	assert.Empty(t, e.ledger.methods())
}

func TestGetWithdrawalURL_WrongPasswordStopsChain(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.errs["account.getPassword"] = apierror.New(401, "SESSION_PASSWORD_NEEDED")

	_, err := e.manager.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, 500, "pw")
	assert.ErrorIs(t, err, apierror.New(401, "SESSION_PASSWORD_NEEDED"))
	assert.Equal(t, []string{"account.getPassword"}, e.ledger.methods())
}

// closingVerifier closes the runner while the proof is being produced.
type closingVerifier struct{ runner *query.Runner }

func (v closingVerifier) Verify(context.Context, string) *query.Future[api.InputCheckPassword] {
	v.runner.Close()
	return query.Resolved(api.InputCheckPassword{SRPID: 1})
}

func TestGetWithdrawalURL_ClosedAfterVerification(t *testing.T) {
	e := newEnv(t, false)
	m := NewManager(e.runner, e.dir, closingVerifier{runner: e.runner})

	_, err := m.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, 1, "pw")
	assert.ErrorIs(t, err, apierror.ErrRequestAborted)
	assert.Empty(t, e.ledger.methods())
}

// countingVerifier records every password it is asked to verify.
type countingVerifier struct{ calls *int }

func (v countingVerifier) Verify(context.Context, string) *query.Future[api.InputCheckPassword] {
	*v.calls++
	return query.Resolved(api.InputCheckPassword{SRPID: 1})
}

func TestGetWithdrawalURL_EmptyPasswordRejectedForAnyVerifier(t *testing.T) {
	e := newEnv(t, false)
	calls := 0
	m := NewManager(e.runner, e.dir, countingVerifier{calls: &calls})

	_, err := m.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, 1, "")
	assert.ErrorIs(t, err, apierror.New(400, "PASSWORD_HASH_INVALID"))
	assert.Zero(t, calls)
	assert.Empty(t, e.ledger.methods())
}

func TestGetWithdrawalURL_NegativeStarCount(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.manager.GetWithdrawalURL(context.Background(), dialog.Sender{ChatID: 300}, -1, "pw")
	assert.ErrorIs(t, err, ErrNegativeStarCount)
}

func TestGetAdsAccountURL(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsRevenueAdsAccountUrl"] = `{"url":"https://ads"}`

	url, err := e.manager.GetAdsAccountURL(context.Background(), dialog.Sender{UserID: 100})
	require.NoError(t, err)
	assert.Equal(t, "https://ads", url)
	assert.JSONEq(t, `{"peer":{"@type":"inputPeerUser","user_id":100,"access_hash":11}}`, string(e.ledger.last(t).Body))
}

func TestRefundPayment(t *testing.T) {
	e := newEnv(t, true)
	e.ledger.responses["payments.refundStarsCharge"] = `{
		"updates": [{"@type": "updateNewMessage"}, {"@type": "updateStarsBalance"}],
		"users": [{"id": 800, "first_name": "buyer"}]
	}`

	require.NoError(t, e.manager.RefundPayment(context.Background(), 200, "ch_1"))

	events := e.sink.all()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, updates.KindRaw, ev.Kind)
		assert.Equal(t, dialog.UserID(200), ev.Dialog)
		assert.Equal(t, fixedNow, ev.ReceivedAt)
	}
	assert.JSONEq(t, `{"@type":"updateNewMessage"}`, string(events[0].Raw))

	u, ok := e.dir.User(context.Background(), 800)
	require.True(t, ok)
	assert.Equal(t, "buyer", u.FirstName)

	assert.JSONEq(t, `{"user_id":{"user_id":200,"access_hash":22},"charge_id":"ch_1"}`, string(e.ledger.last(t).Body))
}

func TestRefundPayment_Errors(t *testing.T) {
	e := newEnv(t, true)
	e.ledger.errs["payments.refundStarsCharge"] = apierror.New(400, "CHARGE_ALREADY_REFUNDED")

	assert.ErrorIs(t, e.manager.RefundPayment(context.Background(), 999, "ch_1"), ErrNoUserAccess)
	assert.ErrorIs(t, e.manager.RefundPayment(context.Background(), 200, ""), ErrEmptyChargeID)
	assert.Empty(t, e.ledger.methods())

	err := e.manager.RefundPayment(context.Background(), 200, "ch_1")
	assert.ErrorIs(t, err, apierror.New(400, "CHARGE_ALREADY_REFUNDED"))
	assert.Empty(t, e.sink.all())
}

func TestGetTopupOptions(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsTopupOptions"] = `[
		{"stars": 100, "store_product": "stars.100", "currency": "USD", "amount": 199},
		{"extended": true, "stars": -5, "currency": "JPY", "amount": 300}
	]`

	opts, err := e.manager.GetTopupOptions(context.Background())
	require.NoError(t, err)
	require.Len(t, opts, 2)

	assert.Equal(t, int64(100), opts[0].StarCount)
	assert.Equal(t, "stars.100", opts[0].StoreProduct)
	assert.True(t, opts[0].DisplayAmount.Equal(decimal.RequireFromString("1.99")))

	assert.Equal(t, int64(0), opts[1].StarCount, "negative star count is clamped")
	assert.True(t, opts[1].IsExtended)
	assert.True(t, opts[1].DisplayAmount.Equal(decimal.NewFromInt(300)))
}

func TestOnRevenueStatusUpdate(t *testing.T) {
	e := newEnv(t, false)
	forwarded := metrics.RevenueUpdatesTotal.WithLabelValues("forwarded")
	dropped := metrics.RevenueUpdatesTotal.WithLabelValues("dropped")
	anomalies := metrics.AnomaliesTotal.WithLabelValues(string(anomaly.UnmanageableUpdate))
	fwdBefore, dropBefore, anBefore := counterValue(t, forwarded), counterValue(t, dropped), counterValue(t, anomalies)

	status := api.StarsRevenueStatus{CurrentBalance: 7, AvailableBalance: 5, OverallRevenue: 9}
	e.manager.OnRevenueStatusUpdate(context.Background(), api.UpdateStarsRevenueStatus{
		Peer: api.Peer{Dialog: dialog.ChannelID(300)}, Status: status,
	})
	e.manager.OnRevenueStatusUpdate(context.Background(), api.UpdateStarsRevenueStatus{
		Peer: api.Peer{Dialog: dialog.ChannelID(400)}, Status: status,
	})

	events := e.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, updates.KindRevenueStatus, events[0].Kind)
	assert.Equal(t, dialog.ChannelID(300), events[0].Dialog)
	require.NotNil(t, events[0].Status)
	assert.Equal(t, int64(7), events[0].Status.CurrentCount)

	assert.Equal(t, fwdBefore+1, counterValue(t, forwarded))
	assert.Equal(t, dropBefore+1, counterValue(t, dropped))
	assert.Equal(t, anBefore+1, counterValue(t, anomalies))
}

func TestAsync_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	ledger := blockingLedger{release: release}
	r := query.NewRunner(ledger)
	defer r.Close()

	e := newEnv(t, false)
	m := NewManager(r, e.dir, credential.NewRemoteVerifier(r))

	f := m.GetAdsAccountURLAsync(context.Background(), dialog.Sender{ChatID: 300})
	select {
	case <-f.Done():
		t.Fatal("future completed before the response arrived")
	default:
	}
	close(release)

	url, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://later", url)
}

type blockingLedger struct{ release chan struct{} }

func (b blockingLedger) Issue(ctx context.Context, _ api.Payload) ([]byte, error) {
	select {
	case <-b.release:
		return []byte(`{"url":"https://later"}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": DirectionBoth, "both": DirectionBoth, "incoming": DirectionIncoming, "outgoing": DirectionOutgoing} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	assert.Equal(t, 400, apierror.Code(err))
}

func TestCanManage(t *testing.T) {
	e := newEnv(t, false)

	d, err := e.manager.CanManage(context.Background(), dialog.Sender{ChatID: 400}, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.manager.CanManage(context.Background(), dialog.Sender{ChatID: 400}, false)
	require.NoError(t, err)
	assert.Equal(t, access.Decision{Reason: access.ReasonNotEnoughRight}, d)

	_, err = e.manager.CanManage(context.Background(), dialog.Sender{}, false)
	assert.ErrorIs(t, err, ErrInvalidSender)
}
