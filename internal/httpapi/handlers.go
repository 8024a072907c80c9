package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/and161185/orderhub/internal/authctx"
	"github.com/and161185/orderhub/internal/convert"
	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

const (
	msgPhoneRequired   = "Phone is required"
	msgInvalidCreds    = "Invalid credentials"
	msgSessionActive   = "This account is already logged in on another device"
	msgRateLimited     = "Too many failed login attempts, try again later"
	msgSessionFailed   = "Failed to create session"
	msgLoggedOut       = "Logged out successfully"
	msgNoCredentials   = "Authentication credentials were not provided"
	msgBadToken        = "Given token not valid"
	msgBadRequest      = "Malformed request body"
	msgSignupRequired  = "Phone and password are required"
	msgPhoneTaken      = "An account with this phone already exists"
	msgInvalidOrder    = "Invalid order data"
	msgOrderFailed     = "Failed to create order"
	msgRefreshRequired = "Refresh token is required"
)

type handlers struct {
	log    *zap.Logger
	auth   service.AuthService
	orders service.OrderCreator
	health Pinger
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// identifier/credential and phone/password are both accepted.
type tokenRequest struct {
	Identifier string `json:"identifier"`
	Credential string `json:"credential"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
}

func (t tokenRequest) id() string {
	if t.Identifier != "" {
		return t.Identifier
	}
	return t.Phone
}

func (t tokenRequest) secret() string {
	if t.Credential != "" {
		return t.Credential
	}
	return t.Password
}

func (h *handlers) token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	g, err := h.auth.Login(ctx, req.id(), req.secret(), r.RemoteAddr)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tokenPair{Access: g.Tokens.AccessToken, Refresh: g.Tokens.RefreshToken})
	case errors.Is(err, errs.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, msgPhoneRequired)
	case errors.Is(err, errs.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, msgInvalidCreds)
	case errors.Is(err, errs.ErrSessionActive):
		writeError(w, http.StatusForbidden, msgSessionActive)
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
	default:
		h.log.Error("login", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgSessionFailed)
	}
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, msgRefreshRequired)
		return
	}
	tokens, err := h.auth.Refresh(r.Context(), req.Refresh)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tokenPair{Access: tokens.AccessToken, Refresh: tokens.RefreshToken})
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgBadToken)
	default:
		h.log.Error("refresh", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	acc, err := h.auth.Register(r.Context(), req.Phone, req.FullName, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{
			"id":        acc.ID.String(),
			"phone":     acc.Phone,
			"full_name": acc.FullName,
		})
	case errors.Is(err, errs.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, msgSignupRequired)
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, msgPhoneTaken)
	default:
		h.log.Error("signup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	acc, _ := authctx.AccountFromCtx(r.Context())
	n, err := h.auth.Logout(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("logout", zap.String("account", acc.ID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	h.log.Debug("logout", zap.String("account", acc.ID.String()), zap.Int64("released", n))
	writeJSON(w, http.StatusOK, map[string]string{"message": msgLoggedOut})
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	acc, _ := authctx.AccountFromCtx(r.Context())
	var req struct {
		Name         string           `json:"name"`
		Price        decimal.Decimal  `json:"price"`
		SpecialPrice *decimal.Decimal `json:"special_price"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidOrder)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	o, err := h.orders.CreateOrder(ctx, *acc, model.NewOrder{Name: req.Name, Price: req.Price, SpecialPrice: req.SpecialPrice})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, convert.ToOrderJSON(*o))
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, msgInvalidOrder)
	default:
		h.log.Error("create order", zap.String("account", acc.ID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgOrderFailed)
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn("health check", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
