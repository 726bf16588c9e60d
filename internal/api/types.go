package api

import (
	"encoding/json"
	"fmt"

	"github.com/mbd888/starledger/internal/dialog"
)

// StarsTopupOption is one purchasable star pack.
type StarsTopupOption struct {
	Extended     bool   `json:"extended,omitempty"`
	Stars        int64  `json:"stars"`
	StoreProduct string `json:"store_product,omitempty"`
	Currency     string `json:"currency"`
	Amount       int64  `json:"amount"`
}

// User is a user record embedded in a response.
type User struct {
	ID         int64  `json:"id"`
	AccessHash int64  `json:"access_hash,omitempty"`
	Self       bool   `json:"self,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
	BotCanEdit bool   `json:"bot_can_edit,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Chat is a group or channel record embedded in a response.
type Chat struct {
	Type       string `json:"@type"` // chat or channel
	ID         int64  `json:"id"`
	AccessHash int64  `json:"access_hash,omitempty"`
	Title      string `json:"title,omitempty"`
	Broadcast  bool   `json:"broadcast,omitempty"`
	Megagroup  bool   `json:"megagroup,omitempty"`
	Creator    bool   `json:"creator,omitempty"`
}

// Chat record types.
const (
	ChatTypeChat    = "chat"
	ChatTypeChannel = "channel"
)

// DialogID returns the dialog the record describes.
func (c Chat) DialogID() dialog.ID {
	if c.Type == ChatTypeChannel {
		return dialog.ChannelID(c.ID)
	}
	return dialog.ChatID(c.ID)
}

// Peer is a server-side dialog reference: {"@type":"peerUser","user_id":1}.
type Peer struct {
	Dialog dialog.ID
}

type rawPeer struct {
	Type      string `json:"@type"`
	UserID    int64  `json:"user_id,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	ChannelID int64  `json:"channel_id,omitempty"`
}

// Peer record types.
const (
	PeerTypeUser    = "peerUser"
	PeerTypeChat    = "peerChat"
	PeerTypeChannel = "peerChannel"
)

func (p Peer) MarshalJSON() ([]byte, error) {
	var r rawPeer
	switch p.Dialog.Type {
	case dialog.TypeUser:
		r = rawPeer{Type: PeerTypeUser, UserID: p.Dialog.ID}
	case dialog.TypeChat:
		r = rawPeer{Type: PeerTypeChat, ChatID: p.Dialog.ID}
	case dialog.TypeChannel:
		r = rawPeer{Type: PeerTypeChannel, ChannelID: p.Dialog.ID}
	default:
		return nil, fmt.Errorf("peer of type %s has no wire form", p.Dialog.Type)
	}
	return json.Marshal(r)
}

// UnmarshalJSON accepts an unknown @type and leaves the dialog invalid, so the
// decoder can report it instead of failing the whole response.
func (p *Peer) UnmarshalJSON(data []byte) error {
	var r rawPeer
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	switch r.Type {
	case PeerTypeUser:
		p.Dialog = dialog.UserID(r.UserID)
	case PeerTypeChat:
		p.Dialog = dialog.ChatID(r.ChatID)
	case PeerTypeChannel:
		p.Dialog = dialog.ChannelID(r.ChannelID)
	default:
		p.Dialog = dialog.ID{}
	}
	return nil
}

// Transaction peer kinds.
const (
	TransactionPeerUnsupported = "starsTransactionPeerUnsupported"
	TransactionPeerPremiumBot  = "starsTransactionPeerPremiumBot"
	TransactionPeerAppStore    = "starsTransactionPeerAppStore"
	TransactionPeerPlayMarket  = "starsTransactionPeerPlayMarket"
	TransactionPeerFragment    = "starsTransactionPeerFragment"
	TransactionPeerPeer        = "starsTransactionPeer"
	TransactionPeerAds         = "starsTransactionPeerAds"
)

// TransactionPeer is the counterparty of a transaction. Peer is set only
// for the starsTransactionPeer kind.
type TransactionPeer struct {
	Type string `json:"@type"`
	Peer *Peer  `json:"peer,omitempty"`
}

// WebDocument is a remote file referenced by URL.
type WebDocument struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int32  `json:"size,omitempty"`
	W        int32  `json:"w,omitempty"`
	H        int32  `json:"h,omitempty"`
}

// Photo is a server photo object.
type Photo struct {
	ID int64 `json:"id"`
	W  int32 `json:"w,omitempty"`
	H  int32 `json:"h,omitempty"`
}

// Document is a server document object. Video documents carry a duration.
type Document struct {
	ID       int64  `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int32  `json:"duration,omitempty"`
	W        int32  `json:"w,omitempty"`
	H        int32  `json:"h,omitempty"`
	Video    bool   `json:"video,omitempty"`
}

// Media record types.
const (
	MediaTypePhoto    = "messageMediaPhoto"
	MediaTypeDocument = "messageMediaDocument"
)

// MessageMedia is the content of a paid media item once unlocked.
type MessageMedia struct {
	Type     string    `json:"@type"`
	Photo    *Photo    `json:"photo,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Extended media record types.
const (
	ExtendedMediaPreview = "messageExtendedMediaPreview"
	ExtendedMediaFull    = "messageExtendedMedia"
)

// MessageExtendedMedia is a paid media item: a blurred preview or the media itself.
type MessageExtendedMedia struct {
	Type          string        `json:"@type"`
	W             int32         `json:"w,omitempty"`
	H             int32         `json:"h,omitempty"`
	Thumb         []byte        `json:"thumb,omitempty"`
	VideoDuration int32         `json:"video_duration,omitempty"`
	Media         *MessageMedia `json:"media,omitempty"`
}

// StarsTransaction is a raw ledger record as the server sends it.
type StarsTransaction struct {
	ID              string                 `json:"id"`
	Stars           int64                  `json:"stars"`
	Refund          bool                   `json:"refund,omitempty"`
	Pending         bool                   `json:"pending,omitempty"`
	Failed          bool                   `json:"failed,omitempty"`
	Date            int32                  `json:"date"`
	Peer            TransactionPeer        `json:"peer"`
	Title           string                 `json:"title,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Photo           *WebDocument           `json:"photo,omitempty"`
	TransactionDate int32                  `json:"transaction_date,omitempty"`
	TransactionURL  string                 `json:"transaction_url,omitempty"`
	BotPayload      []byte                 `json:"bot_payload,omitempty"`
	MsgID           int32                  `json:"msg_id,omitempty"`
	ExtendedMedia   []MessageExtendedMedia `json:"extended_media,omitempty"`
}

// StarsStatus is the response of GetStarsTransactions.
type StarsStatus struct {
	Balance    int64              `json:"balance"`
	History    []StarsTransaction `json:"history"`
	NextOffset string             `json:"next_offset,omitempty"`
	Chats      []Chat             `json:"chats,omitempty"`
	Users      []User             `json:"users,omitempty"`
}

// StarsRevenueStatus is the withdrawable state of a revenue balance.
type StarsRevenueStatus struct {
	WithdrawalEnabled bool  `json:"withdrawal_enabled,omitempty"`
	CurrentBalance    int64 `json:"current_balance"`
	AvailableBalance  int64 `json:"available_balance"`
	OverallRevenue    int64 `json:"overall_revenue"`
	NextWithdrawalAt  int32 `json:"next_withdrawal_at,omitempty"`
}

// Statistics graph record types.
const (
	StatsGraphData  = "statsGraph"
	StatsGraphAsync = "statsGraphAsync"
	StatsGraphError = "statsGraphError"
)

// StatsGraph is a chart in one of three states: ready data, a token to load
// it later, or an error text.
type StatsGraph struct {
	Type      string          `json:"@type"`
	JSON      json.RawMessage `json:"json,omitempty"`
	ZoomToken string          `json:"zoom_token,omitempty"`
	Token     string          `json:"token,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// StarsRevenueStats is the response of GetStarsRevenueStats.
type StarsRevenueStats struct {
	RevenueGraph StatsGraph         `json:"revenue_graph"`
	Status       StarsRevenueStatus `json:"status"`
	USDRate      float64            `json:"usd_rate"`
}

// URLResponse is returned by the withdrawal and ads account URL calls.
type URLResponse struct {
	URL string `json:"url"`
}

// Updates is a batch of pushed changes with the records they reference.
type Updates struct {
	Updates []json.RawMessage `json:"updates"`
	Users   []User            `json:"users,omitempty"`
	Chats   []Chat            `json:"chats,omitempty"`
}

// UpdateStarsRevenueStatus is pushed when the revenue balance of Peer changes.
type UpdateStarsRevenueStatus struct {
	Peer   Peer               `json:"peer"`
	Status StarsRevenueStatus `json:"status"`
}

// Password holds the key derivation parameters of the account password.
type Password struct {
	HasPassword bool   `json:"has_password"`
	SRPID       int64  `json:"srp_id,omitempty"`
	Salt        []byte `json:"salt,omitempty"`
	Iterations  int    `json:"iterations,omitempty"`
}

// ErrorBody is the body of a failed call.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
