// Package stars exposes the star balance operations: topup options,
// transaction history, refunds, revenue statistics, withdrawal and ads
// account links, and server-pushed revenue updates.
//
// Every operation checks its input and the caller's rights before a request
// is sent. Each has an Async form returning a future; the plain form waits
// for it.
package stars

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/starledger/internal/access"
	"github.com/mbd888/starledger/internal/amount"
	"github.com/mbd888/starledger/internal/anomaly"
	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/credential"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/mbd888/starledger/internal/query"
	"github.com/mbd888/starledger/internal/revenue"
	"github.com/mbd888/starledger/internal/transactions"
	"github.com/mbd888/starledger/internal/updates"
)

var (
	ErrNegativeLimit     = apierror.New(400, "Limit must be non-negative")
	ErrNoChatAccess      = apierror.New(400, "Have no access to the chat")
	ErrNoUserAccess      = apierror.New(400, "Have no access to the user")
	ErrInvalidSender     = apierror.New(400, "Invalid message sender specified")
	ErrUnknownSender     = apierror.New(400, "Unknown message sender")
	ErrEmptyChargeID     = apierror.New(400, "Charge identifier must be non-empty")
	ErrNegativeStarCount = apierror.New(400, "Star count must be non-negative")
)

// Directory is what the manager needs to know about users and chats.
type Directory interface {
	dialog.Resolver
	access.Directory
	CallerIsBot() bool
	InputPeer(ctx context.Context, id dialog.ID) (api.InputPeer, bool)
	InputUser(ctx context.Context, id int64) (api.InputUser, bool)
	CommitUsers(ctx context.Context, users []api.User)
	CommitChats(ctx context.Context, chats []api.Chat)
}

// Direction filters a transaction history.
type Direction int

const (
	DirectionBoth Direction = iota
	DirectionIncoming
	DirectionOutgoing
)

// ParseDirection accepts "", "both", "incoming" and "outgoing".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "both":
		return DirectionBoth, nil
	case "incoming":
		return DirectionIncoming, nil
	case "outgoing":
		return DirectionOutgoing, nil
	default:
		return 0, apierror.Errorf(400, "Unknown direction %q", s)
	}
}

// PaymentOption is one purchasable star pack.
type PaymentOption struct {
	Currency      string          `json:"currency"`
	Amount        int64           `json:"amount"`
	DisplayAmount decimal.Decimal `json:"display_amount"`
	StarCount     int64           `json:"star_count"`
	StoreProduct  string          `json:"store_product_id,omitempty"`
	IsExtended    bool            `json:"is_extended"`
}

// Manager runs the star operations of one account.
type Manager struct {
	runner    *query.Runner
	dir       Directory
	gate      *access.Gate
	verifier  credential.Verifier
	sink      updates.Sink
	converter *revenue.Converter
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithSink sets where pushed and returned updates are delivered.
func WithSink(s updates.Sink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithConverter replaces the revenue converter.
func WithConverter(c *revenue.Converter) Option {
	return func(m *Manager) {
		m.converter = c
	}
}

// WithClock overrides the time stamped on delivered events.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager sending through runner.
func NewManager(runner *query.Runner, dir Directory, verifier credential.Verifier, opts ...Option) *Manager {
	m := &Manager{
		runner:    runner,
		dir:       dir,
		gate:      access.NewGate(dir),
		verifier:  verifier,
		sink:      updates.Discard{},
		converter: revenue.NewConverter(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanManage exposes the access decision for owner.
func (m *Manager) CanManage(ctx context.Context, owner dialog.Sender, allowSelf bool) (access.Decision, error) {
	id, err := m.resolve(ctx, owner)
	if err != nil {
		return access.Decision{}, err
	}
	return m.gate.CanManage(ctx, id, allowSelf), nil
}

// Owner resolves owner to a dialog the caller may manage.
func (m *Manager) Owner(ctx context.Context, owner dialog.Sender, allowSelf bool) (dialog.ID, error) {
	id, err := m.resolve(ctx, owner)
	if err != nil {
		return dialog.ID{}, err
	}
	if err := m.gate.CanManage(ctx, id, allowSelf).Err(); err != nil {
		return dialog.ID{}, err
	}
	return id, nil
}

func (m *Manager) resolve(ctx context.Context, owner dialog.Sender) (dialog.ID, error) {
	id, err := m.dir.ResolveSender(ctx, owner)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, dialog.ErrAmbiguousSender):
		return dialog.ID{}, ErrInvalidSender
	case errors.Is(err, dialog.ErrNotFound):
		return dialog.ID{}, ErrUnknownSender
	default:
		return dialog.ID{}, apierror.FromError(err)
	}
}

// managedPeer resolves owner, checks access and returns its wire reference.
func (m *Manager) managedPeer(ctx context.Context, owner dialog.Sender, allowSelf bool) (dialog.ID, api.InputPeer, error) {
	id, err := m.Owner(ctx, owner, allowSelf)
	if err != nil {
		return dialog.ID{}, api.InputPeer{}, err
	}
	peer, ok := m.dir.InputPeer(ctx, id)
	if !ok {
		return dialog.ID{}, api.InputPeer{}, ErrNoChatAccess
	}
	return id, peer, nil
}

// onDialogError records a failed query addressed to id.
func (m *Manager) onDialogError(id dialog.ID) func(context.Context, *apierror.Error) {
	return func(ctx context.Context, err *apierror.Error) {
		name, _ := logging.Query(ctx)
		metrics.DialogErrorsTotal.WithLabelValues(name, strconv.Itoa(err.Code)).Inc()
		logging.L(ctx).Info("dialog query failed", "dialog", id.String(), "code", err.Code, "error", err.Message)
	}
}

func (m *Manager) commit(users []api.User, chats []api.Chat) []query.Effect {
	return []query.Effect{
		func(ctx context.Context) { m.dir.CommitUsers(ctx, users) },
		func(ctx context.Context) { m.dir.CommitChats(ctx, chats) },
	}
}

func decodeJSON[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// GetTopupOptionsAsync lists the star packs the account can buy.
func (m *Manager) GetTopupOptionsAsync(ctx context.Context) *query.Future[[]PaymentOption] {
	return query.Send(ctx, m.runner, query.Call[[]PaymentOption]{
		Req: api.GetStarsTopupOptions{},
		DecodeF: func(ctx context.Context, raw []byte) (query.Outcome[[]PaymentOption], error) {
			opts, err := decodeJSON[[]api.StarsTopupOption](raw)
			if err != nil {
				return query.Outcome[[]PaymentOption]{}, err
			}
			out := make([]PaymentOption, 0, len(opts))
			for _, o := range opts {
				out = append(out, PaymentOption{
					Currency:      o.Currency,
					Amount:        o.Amount,
					DisplayAmount: displayAmount(o.Currency, o.Amount),
					StarCount:     amount.Normalize(ctx, o.Stars, false),
					StoreProduct:  o.StoreProduct,
					IsExtended:    o.Extended,
				})
			}
			return query.Outcome[[]PaymentOption]{Value: out}, nil
		},
	})
}

func (m *Manager) GetTopupOptions(ctx context.Context) ([]PaymentOption, error) {
	return m.GetTopupOptionsAsync(ctx).Wait(ctx)
}

// GetTransactionsAsync returns one page of the transaction history of owner.
// Bots page in ascending order.
func (m *Manager) GetTransactionsAsync(ctx context.Context, owner dialog.Sender, offset string, limit int32, direction Direction) *query.Future[transactions.Page] {
	if limit < 0 {
		return query.Failed[transactions.Page](ErrNegativeLimit)
	}
	id, peer, err := m.managedPeer(ctx, owner, true)
	if err != nil {
		return query.Failed[transactions.Page](err)
	}
	callerIsBot := m.dir.CallerIsBot()
	return query.Send(ctx, m.runner, query.Call[transactions.Page]{
		Req: api.GetStarsTransactions{
			Inbound:   direction == DirectionIncoming,
			Outbound:  direction == DirectionOutgoing,
			Ascending: callerIsBot,
			Peer:      peer,
			Offset:    offset,
			Limit:     limit,
		},
		DecodeF: func(ctx context.Context, raw []byte) (query.Outcome[transactions.Page], error) {
			st, err := decodeJSON[api.StarsStatus](raw)
			if err != nil {
				return query.Outcome[transactions.Page]{}, err
			}
			dec := transactions.NewDecoder(ctx, m.dir, callerIsBot, id, st.Users, st.Chats)
			return query.Outcome[transactions.Page]{
				Value:   dec.DecodePage(ctx, st),
				Effects: m.commit(st.Users, st.Chats),
			}, nil
		},
		ErrorF: m.onDialogError(id),
	})
}

func (m *Manager) GetTransactions(ctx context.Context, owner dialog.Sender, offset string, limit int32, direction Direction) (transactions.Page, error) {
	return m.GetTransactionsAsync(ctx, owner, offset, limit, direction).Wait(ctx)
}

// RefundPaymentAsync refunds the payment chargeID made by userID to the
// calling bot. Updates returned by the server are forwarded to the sink.
func (m *Manager) RefundPaymentAsync(ctx context.Context, userID int64, chargeID string) *query.Future[struct{}] {
	if chargeID == "" {
		return query.Failed[struct{}](ErrEmptyChargeID)
	}
	user, ok := m.dir.InputUser(ctx, userID)
	if !ok {
		return query.Failed[struct{}](ErrNoUserAccess)
	}
	return query.Send(ctx, m.runner, query.Call[struct{}]{
		Req: api.RefundStarsCharge{UserID: user, ChargeID: chargeID},
		DecodeF: func(ctx context.Context, raw []byte) (query.Outcome[struct{}], error) {
			batch, err := decodeJSON[api.Updates](raw)
			if err != nil {
				return query.Outcome[struct{}]{}, err
			}
			effects := m.commit(batch.Users, batch.Chats)
			effects = append(effects, func(ctx context.Context) {
				for _, u := range batch.Updates {
					m.sink.Publish(ctx, updates.Event{
						Kind:       updates.KindRaw,
						Dialog:     dialog.UserID(userID),
						Raw:        u,
						ReceivedAt: m.now(),
					})
				}
			})
			return query.Outcome[struct{}]{Effects: effects}, nil
		},
	})
}

func (m *Manager) RefundPayment(ctx context.Context, userID int64, chargeID string) error {
	_, err := m.RefundPaymentAsync(ctx, userID, chargeID).Wait(ctx)
	return err
}

// GetRevenueStatisticsAsync returns the revenue graph and balance of owner.
func (m *Manager) GetRevenueStatisticsAsync(ctx context.Context, owner dialog.Sender, isDark bool) *query.Future[revenue.Statistics] {
	id, peer, err := m.managedPeer(ctx, owner, false)
	if err != nil {
		return query.Failed[revenue.Statistics](err)
	}
	return query.Send(ctx, m.runner, query.Call[revenue.Statistics]{
		Req: api.GetStarsRevenueStats{Dark: isDark, Peer: peer},
		DecodeF: func(ctx context.Context, raw []byte) (query.Outcome[revenue.Statistics], error) {
			st, err := decodeJSON[api.StarsRevenueStats](raw)
			if err != nil {
				return query.Outcome[revenue.Statistics]{}, err
			}
			return query.Outcome[revenue.Statistics]{Value: m.converter.Statistics(ctx, st)}, nil
		},
		ErrorF: m.onDialogError(id),
	})
}

func (m *Manager) GetRevenueStatistics(ctx context.Context, owner dialog.Sender, isDark bool) (revenue.Statistics, error) {
	return m.GetRevenueStatisticsAsync(ctx, owner, isDark).Wait(ctx)
}

func (m *Manager) urlCall(id dialog.ID, req api.Request) query.Call[string] {
	return query.Call[string]{
		Req: req,
		DecodeF: func(_ context.Context, raw []byte) (query.Outcome[string], error) {
			r, err := decodeJSON[api.URLResponse](raw)
			if err != nil {
				return query.Outcome[string]{}, err
			}
			return query.Outcome[string]{Value: r.URL}, nil
		},
		ErrorF: m.onDialogError(id),
	}
}

// GetWithdrawalURLAsync verifies password and then asks for a link that
// withdraws starCount stars of owner's revenue.
func (m *Manager) GetWithdrawalURLAsync(ctx context.Context, owner dialog.Sender, starCount int64, password string) *query.Future[string] {
	if starCount < 0 {
		return query.Failed[string](ErrNegativeStarCount)
	}
	id, peer, err := m.managedPeer(ctx, owner, false)
	if err != nil {
		return query.Failed[string](err)
	}
	if password == "" {
		return query.Failed[string](credential.ErrPasswordHashInvalid)
	}
	proof := m.verifier.Verify(ctx, password)
	return query.Then(ctx, proof, func(ctx context.Context, pw api.InputCheckPassword) *query.Future[string] {
		if m.runner.Closed() {
			return query.Failed[string](apierror.ErrRequestAborted)
		}
		return query.Send(ctx, m.runner, m.urlCall(id, api.GetStarsRevenueWithdrawalURL{
			Peer:     peer,
			Stars:    starCount,
			Password: pw,
		}))
	})
}

func (m *Manager) GetWithdrawalURL(ctx context.Context, owner dialog.Sender, starCount int64, password string) (string, error) {
	return m.GetWithdrawalURLAsync(ctx, owner, starCount, password).Wait(ctx)
}

// GetAdsAccountURLAsync returns a link to the ads account of owner.
func (m *Manager) GetAdsAccountURLAsync(ctx context.Context, owner dialog.Sender) *query.Future[string] {
	id, peer, err := m.managedPeer(ctx, owner, false)
	if err != nil {
		return query.Failed[string](err)
	}
	return query.Send(ctx, m.runner, m.urlCall(id, api.GetStarsRevenueAdsAccountURL{Peer: peer}))
}

func (m *Manager) GetAdsAccountURL(ctx context.Context, owner dialog.Sender) (string, error) {
	return m.GetAdsAccountURLAsync(ctx, owner).Wait(ctx)
}

// OnRevenueStatusUpdate forwards a pushed revenue balance to the sink. Updates
// for dialogs the caller cannot manage are dropped and reported.
func (m *Manager) OnRevenueStatusUpdate(ctx context.Context, u api.UpdateStarsRevenueStatus) {
	id := u.Peer.Dialog
	if d := m.gate.CanManage(ctx, id, false); !d.Allowed {
		anomaly.Report(ctx, anomaly.UnmanageableUpdate, "revenue update for a dialog the caller cannot manage",
			"dialog", id.String(), "reason", d.Reason)
		metrics.RevenueUpdatesTotal.WithLabelValues("dropped").Inc()
		return
	}
	status := m.converter.Status(ctx, u.Status)
	m.sink.Publish(ctx, updates.Event{
		Kind:       updates.KindRevenueStatus,
		Dialog:     id,
		Status:     &status,
		ReceivedAt: m.now(),
	})
	metrics.RevenueUpdatesTotal.WithLabelValues("forwarded").Inc()
}

// zeroDecimalCurrencies are priced in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// displayAmount converts an amount in the smallest currency unit to a
// decimal price.
func displayAmount(currency string, minor int64) decimal.Decimal {
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(minor)
	}
	return decimal.New(minor, -2)
}
