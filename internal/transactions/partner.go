package transactions

import (
	"encoding/json"
)

// Partner kinds as they appear in JSON output.
const (
	KindUnsupported = "unsupported"
	KindTelegram    = "telegram"
	KindAppStore    = "app_store"
	KindGooglePlay  = "google_play"
	KindFragment    = "fragment"
	KindBot         = "bot"
	KindChannel     = "channel"
	KindTelegramAds = "telegram_ads"
)

// Partner is the counterparty of a transaction. The set of implementations
// is closed; switch on the concrete type.
type Partner interface {
	Kind() string
	partner()
}

// PartnerUnsupported stands for counterparties the client cannot represent.
type PartnerUnsupported struct{}

// PartnerTelegram is the service operator itself, e.g. a premium bot purchase.
type PartnerTelegram struct{}

// PartnerAppStore is a purchase made through the Apple App Store.
type PartnerAppStore struct{}

// PartnerGooglePlay is a purchase made through Google Play.
type PartnerGooglePlay struct{}

// PartnerFragment is a withdrawal through Fragment. State is nil when the
// server reported no progress.
type PartnerFragment struct {
	State WithdrawalState `json:"withdrawal_state"`
}

// PartnerBot is a payment to or from a bot.
type PartnerBot struct {
	UserID      int64        `json:"user_id"`
	ProductInfo *ProductInfo `json:"product_info,omitempty"`
	Payload     []byte       `json:"invoice_payload,omitempty"`
}

// PartnerChannel is a paid media purchase or revenue of a channel.
type PartnerChannel struct {
	ChatID        int64           `json:"chat_id"`
	MessageID     int32           `json:"message_id,omitempty"`
	ExtendedMedia []ExtendedMedia `json:"media,omitempty"`
}

// PartnerTelegramAds is revenue withdrawn to the ads platform.
type PartnerTelegramAds struct{}

func (PartnerUnsupported) Kind() string { return KindUnsupported }
func (PartnerTelegram) Kind() string    { return KindTelegram }
func (PartnerAppStore) Kind() string    { return KindAppStore }
func (PartnerGooglePlay) Kind() string  { return KindGooglePlay }
func (PartnerFragment) Kind() string    { return KindFragment }
func (PartnerBot) Kind() string         { return KindBot }
func (PartnerChannel) Kind() string     { return KindChannel }
func (PartnerTelegramAds) Kind() string { return KindTelegramAds }

func (PartnerUnsupported) partner() {}
func (PartnerTelegram) partner()    {}
func (PartnerAppStore) partner()    {}
func (PartnerGooglePlay) partner()  {}
func (PartnerFragment) partner()    {}
func (PartnerBot) partner()         {}
func (PartnerChannel) partner()     {}
func (PartnerTelegramAds) partner() {}

func kindOnly(kind string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{kind})
}

func (p PartnerUnsupported) MarshalJSON() ([]byte, error) { return kindOnly(p.Kind()) }
func (p PartnerTelegram) MarshalJSON() ([]byte, error)    { return kindOnly(p.Kind()) }
func (p PartnerAppStore) MarshalJSON() ([]byte, error)    { return kindOnly(p.Kind()) }
func (p PartnerGooglePlay) MarshalJSON() ([]byte, error)  { return kindOnly(p.Kind()) }
func (p PartnerTelegramAds) MarshalJSON() ([]byte, error) { return kindOnly(p.Kind()) }

func (p PartnerFragment) MarshalJSON() ([]byte, error) {
	type plain PartnerFragment
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{p.Kind(), plain(p)})
}

func (p PartnerBot) MarshalJSON() ([]byte, error) {
	type plain PartnerBot
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{p.Kind(), plain(p)})
}

func (p PartnerChannel) MarshalJSON() ([]byte, error) {
	type plain PartnerChannel
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{p.Kind(), plain(p)})
}

// ProductInfo describes what a bot sold.
type ProductInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Photo       *Photo `json:"photo,omitempty"`
}

// Empty reports whether the record carried no product fields.
func (p ProductInfo) Empty() bool {
	return p.Title == "" && p.Description == "" && p.Photo == nil
}

// Photo is a remote image.
type Photo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Width    int32  `json:"width,omitempty"`
	Height   int32  `json:"height,omitempty"`
}
