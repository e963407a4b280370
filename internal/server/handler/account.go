package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/auth"
	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// AccountWriter is the provisioning side of the account store.
type AccountWriter interface {
	Upsert(ctx context.Context, account domain.Account, apiKey string) error
}

// AccountHandler serves admin provisioning: creating accounts and minting
// short-lived access tokens. Routes using it sit behind the admin API key.
type AccountHandler struct {
	store     AccountWriter
	jwtSecret string
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewAccountHandler creates an AccountHandler. store may be nil when no
// database is configured; account creation then returns 503.
func NewAccountHandler(store AccountWriter, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		store:     store,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

type upsertAccountRequest struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"`
	Role   string `json:"role"`
}

// UpsertAccount creates or updates an account record.
// POST /api/accounts
func (h *AccountHandler) UpsertAccount(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "account store not configured")
		return
	}

	var req upsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.ID == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "id and api_key are required")
		return
	}

	account := domain.Account{ID: req.ID, Role: domain.ParseRole(req.Role)}
	if err := h.store.Upsert(r.Context(), account, req.APIKey); err != nil {
		h.logger.Error("account upsert failed",
			slog.String("account_id", req.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   account.ID,
		"role": string(account.Role),
	})
}

type mintTokenRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// MintToken issues a signed access token for an account.
// POST /api/tokens
func (h *AccountHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	if h.jwtSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "token signing not configured")
		return
	}

	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	account := domain.Account{ID: req.AccountID, Role: domain.ParseRole(req.Role)}
	token, err := auth.SignToken(h.jwtSecret, account, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.tokenTTL.Seconds()),
	})
}
