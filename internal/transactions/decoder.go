// Package transactions turns raw ledger records into validated transactions.
//
// Decoding never fails. Records that violate the ledger's own rules are
// reported through the anomaly package and degraded to a safe form: an
// unsupported partner, a clamped amount, or no withdrawal state.
package transactions

import (
	"context"

	"github.com/mbd888/starledger/internal/amount"
	"github.com/mbd888/starledger/internal/anomaly"
	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/dialog"
)

// Lookup resolves the users and channels referenced by records.
type Lookup interface {
	User(ctx context.Context, id int64) (api.User, bool)
	Channel(ctx context.Context, id int64) (api.Chat, bool)
}

// Transaction is a decoded ledger entry.
type Transaction struct {
	ID        string  `json:"id"`
	StarCount int64   `json:"star_count"`
	IsRefund  bool    `json:"is_refund"`
	Date      int32   `json:"date"`
	Partner   Partner `json:"partner"`
}

// Page is one page of a transaction history.
type Page struct {
	StarCount    int64         `json:"star_count"`
	Transactions []Transaction `json:"transactions"`
	NextOffset   string        `json:"next_offset"`
}

// Decoder converts the records of a single response. Users and chats
// embedded in the response take precedence over the directory, so the
// directory does not have to be updated before decoding.
type Decoder struct {
	dir         Lookup
	callerIsBot bool
	ownerIsBot  bool
	users       map[int64]api.User
	channels    map[int64]api.Chat
}

// NewDecoder creates a decoder for the history of owner as seen by the caller.
func NewDecoder(ctx context.Context, dir Lookup, callerIsBot bool, owner dialog.ID, users []api.User, chats []api.Chat) *Decoder {
	d := &Decoder{
		dir:         dir,
		callerIsBot: callerIsBot,
		users:       make(map[int64]api.User, len(users)),
		channels:    make(map[int64]api.Chat, len(chats)),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	for _, c := range chats {
		if c.Type == api.ChatTypeChannel {
			d.channels[c.ID] = c
		}
	}
	if owner.Type == dialog.TypeUser {
		u, ok := d.user(ctx, owner.ID)
		d.ownerIsBot = ok && u.Bot
	}
	return d
}

func (d *Decoder) user(ctx context.Context, id int64) (api.User, bool) {
	if u, ok := d.users[id]; ok {
		return u, true
	}
	return d.dir.User(ctx, id)
}

func (d *Decoder) channel(ctx context.Context, id int64) (api.Chat, bool) {
	if c, ok := d.channels[id]; ok {
		return c, true
	}
	return d.dir.Channel(ctx, id)
}

// DecodePage converts a whole response. The balance may be negative.
func (d *Decoder) DecodePage(ctx context.Context, st api.StarsStatus) Page {
	page := Page{
		StarCount:    amount.Normalize(ctx, st.Balance, true),
		Transactions: make([]Transaction, 0, len(st.History)),
		NextOffset:   st.NextOffset,
	}
	for _, raw := range st.History {
		page.Transactions = append(page.Transactions, d.Decode(ctx, raw))
	}
	return page
}

// fields holds the optional parts of a record that a partner may consume.
type fields struct {
	product    ProductInfo
	payload    []byte
	withdrawal WithdrawalSignals
	msgID      int32
	media      []api.MessageExtendedMedia
}

// Decode converts one record. It does not modify the decoder, so decoding
// the same record twice gives equal results.
func (d *Decoder) Decode(ctx context.Context, raw api.StarsTransaction) Transaction {
	f := fields{
		product: productInfo(raw),
		withdrawal: WithdrawalSignals{
			SucceededAt:  raw.TransactionDate,
			SucceededURL: raw.TransactionURL,
			Pending:      raw.Pending,
			Failed:       raw.Failed,
		},
		msgID: raw.MsgID,
		media: raw.ExtendedMedia,
	}
	if len(raw.BotPayload) > 0 {
		if d.callerIsBot {
			f.payload = raw.BotPayload
		} else if !d.ownerIsBot {
			anomaly.Report(ctx, anomaly.UnexpectedBotPayload, "receive star transaction with bot payload", "transaction_id", raw.ID)
		}
	}

	partner, f := d.resolvePartner(ctx, raw, f)
	if _, unsupported := partner.(PartnerUnsupported); !unsupported {
		reportLeftovers(ctx, raw.ID, f)
	}

	return Transaction{
		ID:        raw.ID,
		StarCount: amount.Normalize(ctx, raw.Stars, true),
		IsRefund:  raw.Refund,
		Date:      raw.Date,
		Partner:   partner,
	}
}

func (d *Decoder) resolvePartner(ctx context.Context, raw api.StarsTransaction, f fields) (Partner, fields) {
	switch raw.Peer.Type {
	case api.TransactionPeerUnsupported:
		return PartnerUnsupported{}, f
	case api.TransactionPeerPremiumBot:
		return PartnerTelegram{}, f
	case api.TransactionPeerAppStore:
		return PartnerAppStore{}, f
	case api.TransactionPeerPlayMarket:
		return PartnerGooglePlay{}, f
	case api.TransactionPeerAds:
		return PartnerTelegramAds{}, f
	case api.TransactionPeerFragment:
		var state WithdrawalState
		state, f.withdrawal = ResolveWithdrawal(ctx, f.withdrawal, raw.Refund)
		return PartnerFragment{State: state}, f
	case api.TransactionPeerPeer:
		if raw.Peer.Peer == nil {
			break
		}
		return d.peerPartner(ctx, raw.ID, raw.Peer.Peer.Dialog, f)
	default:
		anomaly.Report(ctx, anomaly.UnknownPeerType, "receive unknown transaction partner", "type", raw.Peer.Type, "transaction_id", raw.ID)
		return PartnerUnsupported{}, f
	}
	anomaly.Report(ctx, anomaly.UnexpectedPeer, "receive transaction partner without peer", "transaction_id", raw.ID)
	return PartnerUnsupported{}, f
}

func (d *Decoder) peerPartner(ctx context.Context, txID string, peer dialog.ID, f fields) (Partner, fields) {
	switch peer.Type {
	case dialog.TypeUser:
		u, ok := d.user(ctx, peer.ID)
		isBot := ok && u.Bot
		if isBot == d.callerIsBot {
			anomaly.Report(ctx, anomaly.PeerBotMismatch, "receive star transaction with a user of the same kind",
				"transaction_id", txID, "user_id", peer.ID, "caller_is_bot", d.callerIsBot)
			return PartnerUnsupported{}, f
		}
		p := PartnerBot{UserID: peer.ID, Payload: f.payload}
		if !f.product.Empty() {
			info := f.product
			p.ProductInfo = &info
		}
		f.product, f.payload = ProductInfo{}, nil
		return p, f
	case dialog.TypeChannel:
		if ch, ok := d.channel(ctx, peer.ID); ok && ch.Broadcast {
			msgID := f.msgID
			if msgID < 0 {
				anomaly.Report(ctx, anomaly.InvalidMessageID, "receive invalid message id", "transaction_id", txID, "message_id", msgID)
				msgID = 0
			}
			p := PartnerChannel{ChatID: peer.ID, MessageID: msgID, ExtendedMedia: convertMedia(ctx, f.media)}
			f.msgID, f.media = 0, nil
			return p, f
		}
	}
	anomaly.Report(ctx, anomaly.UnexpectedPeer, "receive star transaction with unexpected peer", "transaction_id", txID, "peer", peer.String())
	return PartnerUnsupported{}, f
}

// reportLeftovers flags record fields the resolved partner has no place for.
func reportLeftovers(ctx context.Context, txID string, f fields) {
	if !f.product.Empty() {
		anomaly.Report(ctx, anomaly.LeftoverProductInfo, "receive product info with unsupported partner", "transaction_id", txID)
	}
	if len(f.payload) > 0 {
		anomaly.Report(ctx, anomaly.LeftoverBotPayload, "receive bot payload with unsupported partner", "transaction_id", txID)
	}
	if !f.withdrawal.Empty() {
		anomaly.Report(ctx, anomaly.LeftoverWithdrawal, "receive withdrawal state with unsupported partner", "transaction_id", txID)
	}
	if f.msgID != 0 {
		anomaly.Report(ctx, anomaly.LeftoverMessageID, "receive message id with unsupported partner", "transaction_id", txID)
	}
}

func productInfo(raw api.StarsTransaction) ProductInfo {
	info := ProductInfo{Title: raw.Title, Description: raw.Description}
	if raw.Photo != nil {
		info.Photo = &Photo{URL: raw.Photo.URL, MimeType: raw.Photo.MimeType, Width: raw.Photo.W, Height: raw.Photo.H}
	}
	return info
}
