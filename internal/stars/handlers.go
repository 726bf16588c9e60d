package stars

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/updates"
	"github.com/mbd888/starledger/internal/validation"
)

// Handler provides HTTP endpoints for star operations.
type Handler struct {
	manager *Manager
	journal updates.Journal
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithJournal enables the revenue event history endpoint.
func WithJournal(j updates.Journal) HandlerOption {
	return func(h *Handler) {
		h.journal = j
	}
}

// NewHandler creates a new star handler.
func NewHandler(manager *Manager, opts ...HandlerOption) *Handler {
	h := &Handler{manager: manager}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up star routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stars/topup-options", h.GetTopupOptions)
	r.GET("/stars/transactions", h.GetTransactions)
	r.POST("/stars/refunds", h.RefundPayment)
	r.GET("/stars/revenue", h.GetRevenueStatistics)
	r.POST("/stars/revenue/withdrawal-url", h.GetWithdrawalURL)
	r.GET("/stars/revenue/ads-account-url", h.GetAdsAccountURL)
	r.POST("/stars/revenue/updates", h.PushRevenueStatus)
	if h.journal != nil {
		r.GET("/stars/revenue/events", h.ListRevenueEvents)
	}
}

// RefundRequest is the body of POST /v1/stars/refunds.
type RefundRequest struct {
	UserID   int64  `json:"user_id"`
	ChargeID string `json:"charge_id"`
}

// WithdrawalRequest is the body of POST /v1/stars/revenue/withdrawal-url.
type WithdrawalRequest struct {
	dialog.Sender
	StarCount int64  `json:"star_count"`
	Password  string `json:"password"`
}

// GetTopupOptions handles GET /v1/stars/topup-options
func (h *Handler) GetTopupOptions(c *gin.Context) {
	opts, err := h.manager.GetTopupOptions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": opts, "count": len(opts)})
}

// GetTransactions handles GET /v1/stars/transactions?user_id=|chat_id=&offset=&limit=&direction=
func (h *Handler) GetTransactions(c *gin.Context) {
	owner, ok := senderParam(c)
	if !ok {
		return
	}
	limit, verr := validation.IntQuery(c, "limit", 20)
	if verr == nil {
		verr = validation.InRange("limit", limit, 0, validation.MaxPageLimit)()
	}
	if verr != nil {
		writeValidation(c, validation.ValidationErrors{*verr})
		return
	}
	offset := c.Query("offset")
	if errs := validation.Validate(validation.MaxLength("offset", offset, validation.MaxOffsetLength)); len(errs) > 0 {
		writeValidation(c, errs)
		return
	}
	offset = validation.SanitizeString(offset, validation.MaxOffsetLength)
	direction, err := ParseDirection(c.Query("direction"))
	if err != nil {
		writeError(c, err)
		return
	}

	page, err := h.manager.GetTransactions(c.Request.Context(), owner, offset, int32(limit), direction)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// RefundPayment handles POST /v1/stars/refunds
func (h *Handler) RefundPayment(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.Positive("user_id", req.UserID),
		validation.Required("charge_id", req.ChargeID),
		validation.ValidChargeID("charge_id", req.ChargeID),
	); len(errs) > 0 {
		writeValidation(c, errs)
		return
	}

	if err := h.manager.RefundPayment(c.Request.Context(), req.UserID, req.ChargeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": true})
}

// GetRevenueStatistics handles GET /v1/stars/revenue?user_id=|chat_id=&dark=
func (h *Handler) GetRevenueStatistics(c *gin.Context) {
	owner, ok := senderParam(c)
	if !ok {
		return
	}
	stats, err := h.manager.GetRevenueStatistics(c.Request.Context(), owner, c.Query("dark") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetWithdrawalURL handles POST /v1/stars/revenue/withdrawal-url
func (h *Handler) GetWithdrawalURL(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(
		validation.ValidSender(req.Sender),
		validation.MaxLength("password", req.Password, validation.MaxPasswordLength),
	); len(errs) > 0 {
		writeValidation(c, errs)
		return
	}

	url, err := h.manager.GetWithdrawalURL(c.Request.Context(), req.Sender, req.StarCount, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GetAdsAccountURL handles GET /v1/stars/revenue/ads-account-url?user_id=|chat_id=
func (h *Handler) GetAdsAccountURL(c *gin.Context) {
	owner, ok := senderParam(c)
	if !ok {
		return
	}
	url, err := h.manager.GetAdsAccountURL(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// PushRevenueStatus handles POST /v1/stars/revenue/updates, the delivery
// endpoint for server-pushed revenue balances.
func (h *Handler) PushRevenueStatus(c *gin.Context) {
	var u api.UpdateStarsRevenueStatus
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid update body",
		})
		return
	}
	h.manager.OnRevenueStatusUpdate(c.Request.Context(), u)
	c.Status(http.StatusAccepted)
}

// ListRevenueEvents handles GET /v1/stars/revenue/events?user_id=|chat_id=&limit=
func (h *Handler) ListRevenueEvents(c *gin.Context) {
	owner, ok := senderParam(c)
	if !ok {
		return
	}
	limit, verr := validation.IntQuery(c, "limit", 50)
	if verr == nil {
		verr = validation.InRange("limit", limit, 1, 200)()
	}
	if verr != nil {
		writeValidation(c, validation.ValidationErrors{*verr})
		return
	}

	ctx := c.Request.Context()
	id, err := h.manager.Owner(ctx, owner, false)
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := h.journal.Recent(ctx, id, int(limit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load revenue events",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func senderParam(c *gin.Context) (dialog.Sender, bool) {
	s, verr := validation.SenderFromQuery(c)
	if verr != nil {
		writeValidation(c, validation.ValidationErrors{*verr})
		return dialog.Sender{}, false
	}
	if errs := validation.Validate(validation.ValidSender(s)); len(errs) > 0 {
		writeValidation(c, errs)
		return dialog.Sender{}, false
	}
	return s, true
}

func writeValidation(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}

// writeError maps a ledger error to an HTTP status with the ledger code and
// message in the body.
func writeError(c *gin.Context, err error) {
	e := apierror.FromError(err)
	status := e.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"error":   errorSlug(status),
		"code":    e.Code,
		"message": e.Message,
	})
}

func errorSlug(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status < 500:
		return "request_failed"
	default:
		return "ledger_error"
	}
}
