package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/service/wallet/application"
	"nexus-sale/internal/service/wallet/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const headerUserID = "X-User-Id"

// WalletHandler 封装了 wallet 服务的 HTTP 处理器
type WalletHandler struct {
	service *application.WalletService
}

func NewWalletHandler(service *application.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
// /wallet/operate 只供 sale 等内部服务调用，网关不对外暴露。
func (h *WalletHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /wallet/operate", h.operateHandler)
	mux.HandleFunc("POST /wallet/recharge", h.userHandler(h.service.Recharge))
	mux.HandleFunc("POST /wallet/cash_out", h.userHandler(h.service.CashOut))
	mux.HandleFunc("GET /wallet/get", h.getHandler)
}

type operateRequest struct {
	Type  domain.TargetKind `json:"type"`
	ID    uint64            `json:"id"`
	Num   int64             `json:"num"`
	Force bool              `json:"force"`
}

type numRequest struct {
	Num int64 `json:"num"`
}

type balanceResponse struct {
	BalanceID uint64 `json:"balance_id"`
	UserID    uint64 `json:"user_id"`
	Num       int64  `json:"num"`
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func (h *WalletHandler) operateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var req operateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidOperation, err))
		return
	}
	b, err := h.service.Operate(ctx, domain.Target{Kind: req.Type, ID: req.ID}, req.Num, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBalance(w, b)
}

func (h *WalletHandler) userHandler(op func(context.Context, uint64, int64) (*domain.Balance, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := extract(r)
		userID, err := userFrom(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req numRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidOperation, err))
			return
		}
		b, err := op(ctx, userID, req.Num)
		if err != nil {
			writeError(w, err)
			return
		}
		writeBalance(w, b)
	}
}

func (h *WalletHandler) getHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	userID, err := userFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.service.Get(ctx, userID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("get balance failed")
		writeError(w, err)
		return
	}
	writeBalance(w, b)
}

func userFrom(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.Header.Get(headerUserID), 10, 64)
	if err != nil || id == 0 {
		return 0, errUnauthenticated
	}
	return id, nil
}

var errUnauthenticated = errors.New("missing user identity")

func writeBalance(w http.ResponseWriter, b *domain.Balance) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(balanceResponse{BalanceID: b.ID, UserID: b.UserID, Num: b.Num})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOperation):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
