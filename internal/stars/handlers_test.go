package stars

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/updates"
)

func setupRouter(t *testing.T, e *env, opts ...HandlerOption) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(e.manager, opts...).RegisterRoutes(r.Group("/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandler_GetTransactions(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsTransactions"] = `{"balance":12,"history":[
		{"id":"a","stars":5,"date":1,"peer":{"@type":"starsTransactionPeerAppStore"}}
	],"next_offset":"n"}`
	r := setupRouter(t, e)

	w := doJSON(r, http.MethodGet, "/v1/stars/transactions?chat_id=300&limit=20&direction=incoming", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"star_count": 12,
		"transactions": [{"id":"a","star_count":5,"is_refund":false,"date":1,"partner":{"type":"app_store"}}],
		"next_offset": "n"
	}`, w.Body.String())
}

func TestHandler_ValidationErrors(t *testing.T) {
	e := newEnv(t, false)
	r := setupRouter(t, e)

	tests := []struct {
		name, method, path string
		body               any
	}{
		{"no owner", http.MethodGet, "/v1/stars/transactions", nil},
		{"both owners", http.MethodGet, "/v1/stars/revenue?user_id=1&chat_id=300", nil},
		{"bad number", http.MethodGet, "/v1/stars/revenue/ads-account-url?chat_id=x", nil},
		{"limit too large", http.MethodGet, "/v1/stars/transactions?chat_id=300&limit=1000", nil},
		{"refund without charge", http.MethodPost, "/v1/stars/refunds", RefundRequest{UserID: 200}},
		{"withdrawal without owner", http.MethodPost, "/v1/stars/revenue/withdrawal-url", WithdrawalRequest{Password: "pw"}},
		{"offset too long", http.MethodGet, "/v1/stars/transactions?chat_id=300&offset=" + strings.Repeat("o", 513), nil},
		{"password too long", http.MethodPost, "/v1/stars/revenue/withdrawal-url", WithdrawalRequest{
			Sender: dialog.Sender{ChatID: 300}, StarCount: 1, Password: strings.Repeat("p", 1025)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", decodeBody(t, w)["error"])
		})
	}
	assert.Empty(t, e.ledger.methods())
}

func TestHandler_LedgerErrorsKeepCodeAndMessage(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.errs["payments.getStarsRevenueAdsAccountUrl"] = apierror.New(403, "CHAT_ADMIN_REQUIRED")
	r := setupRouter(t, e)

	w := doJSON(r, http.MethodGet, "/v1/stars/revenue?chat_id=400", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Not enough rights", body["message"])
	assert.Equal(t, float64(400), body["code"])

	w = doJSON(r, http.MethodGet, "/v1/stars/revenue/ads-account-url?chat_id=300", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, "CHAT_ADMIN_REQUIRED", body["message"])
}

func TestHandler_WithdrawalURL(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["account.getPassword"] = `{"has_password":true,"srp_id":3,"salt":"AA==","iterations":1}`
	e.ledger.responses["payments.getStarsRevenueWithdrawalUrl"] = `{"url":"https://w"}`
	r := setupRouter(t, e)

	w := doJSON(r, http.MethodPost, "/v1/stars/revenue/withdrawal-url",
		WithdrawalRequest{Sender: dialog.Sender{ChatID: 300}, StarCount: 10, Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://w", decodeBody(t, w)["url"])

	w = doJSON(r, http.MethodPost, "/v1/stars/revenue/withdrawal-url",
		WithdrawalRequest{Sender: dialog.Sender{ChatID: 300}, StarCount: 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PASSWORD_HASH_INVALID", decodeBody(t, w)["message"])
}

func TestHandler_Refund(t *testing.T) {
	e := newEnv(t, true)
	e.ledger.responses["payments.refundStarsCharge"] = `{"updates":[]}`
	r := setupRouter(t, e)

	w := doJSON(r, http.MethodPost, "/v1/stars/refunds", RefundRequest{UserID: 200, ChargeID: "ch_9"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeBody(t, w)["refunded"])
}

func TestHandler_TopupOptions(t *testing.T) {
	e := newEnv(t, false)
	e.ledger.responses["payments.getStarsTopupOptions"] = `[{"stars":50,"currency":"EUR","amount":99}]`
	r := setupRouter(t, e)

	w := doJSON(r, http.MethodGet, "/v1/stars/topup-options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])
	opt := body["options"].([]any)[0].(map[string]any)
	assert.Equal(t, "0.99", opt["display_amount"])
	assert.Equal(t, float64(50), opt["star_count"])
}

func TestHandler_PushAndListRevenueEvents(t *testing.T) {
	e := newEnv(t, false)
	journal := updates.NewMemoryJournal()
	e.manager = NewManager(e.runner, e.dir, nil, WithSink(updates.Fanout{e.sink, journal}))
	r := setupRouter(t, e, WithJournal(journal))

	push := map[string]any{
		"peer":   map[string]any{"@type": "peerChannel", "channel_id": 300},
		"status": map[string]any{"current_balance": 4, "available_balance": 2, "overall_revenue": 8},
	}
	w := doJSON(r, http.MethodPost, "/v1/stars/revenue/updates", push)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/stars/revenue/events?chat_id=300", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])

	events, err := journal.Recent(context.Background(), dialog.ChannelID(300), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Status.CurrentCount)

	w = doJSON(r, http.MethodGet, "/v1/stars/revenue/events?chat_id=400", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
