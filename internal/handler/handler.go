package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nathanyu/account-transfer/internal/domain"
	"github.com/nathanyu/account-transfer/internal/engine"
	"github.com/shopspring/decimal"
)

// Handler contains all HTTP handlers
type Handler struct {
	engine *engine.TransferEngine
}

// NewHandler creates a new handler
func NewHandler(transferEngine *engine.TransferEngine) *Handler {
	return &Handler{engine: transferEngine}
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// TransferRequest is the request body for transfer endpoint
type TransferRequest struct {
	AccountIDFrom string           `json:"account_id_from" binding:"required"`
	AccountIDTo   string           `json:"account_id_to" binding:"required"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
}

// TransferResponse is the response body for transfer endpoint
type TransferResponse struct {
	TransferID    string      `json:"transfer_id"`
	AccountIDFrom string      `json:"account_id_from"`
	AccountIDTo   string      `json:"account_id_to"`
	Amount        json.Number `json:"amount"`
}

// Transfer handles POST /v1/transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := h.engine.Execute(c.Request.Context(), req.AccountIDFrom, req.AccountIDTo, *req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, TransferResponse{
		TransferID:    t.ID.String(),
		AccountIDFrom: t.AccountIDFrom,
		AccountIDTo:   t.AccountIDTo,
		Amount:        json.Number(domain.FormatAmount(t.Amount)),
	})
}

// AccountRequest is the request body for account creation
type AccountRequest struct {
	AccountID string           `json:"account_id" binding:"required"`
	Balance   *decimal.Decimal `json:"balance" binding:"required"`
}

// AccountResponse describes an account and its current balance
type AccountResponse struct {
	AccountID string      `json:"account_id"`
	Balance   json.Number `json:"balance"`
}

func newAccountResponse(acc domain.Account) AccountResponse {
	return AccountResponse{
		AccountID: acc.ID,
		Balance:   json.Number(domain.FormatAmount(acc.Balance)),
	}
}

// CreateAccount handles POST /v1/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	acc, err := h.engine.CreateAccount(c.Request.Context(), req.AccountID, *req.Balance)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAccountResponse(acc))
}

// GetAccount handles GET /v1/accounts/:account_id
func (h *Handler) GetAccount(c *gin.Context) {
	acc, err := h.engine.Account(c.Param("account_id"))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:  domain.CodeAccountNotFound,
				Error: err.Error(),
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAccountResponse(acc))
}

// HealthResponse is the response for health check endpoint
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:  domain.CodeInvalidInput,
		Error: err.Error(),
	})
}

// writeError maps engine errors to HTTP statuses.
// Unknown accounts in a transfer are a bad request, not a missing resource.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAccountExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransferUnavailable):
		status = http.StatusServiceUnavailable
	case domain.IsClientError(err):
		status = http.StatusBadRequest
	}

	c.JSON(status, ErrorResponse{
		Code:  domain.ErrorCode(err),
		Error: err.Error(),
	})
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/transfers", h.Transfer)
		v1.POST("/accounts", h.CreateAccount)
		v1.GET("/accounts/:account_id", h.GetAccount)
	}
}
