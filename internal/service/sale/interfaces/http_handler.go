package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/service/sale/application"
	"nexus-sale/internal/service/sale/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const (
	serviceName = "sale-service"

	headerUserID    = "X-User-Id"
	headerUserRoles = "X-User-Roles"
)

// SaleHandler 封装了 sale 服务的 HTTP 处理器
type SaleHandler struct {
	service *application.SaleService
	hub     *Hub
}

// NewSaleHandler 创建一个新的 HTTP 处理器实例，hub 可以为空（不提供推送）
func NewSaleHandler(service *application.SaleService, hub *Hub) *SaleHandler {
	return &SaleHandler{service: service, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SaleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /items", h.traced("CreateItem", h.createItem))
	mux.HandleFunc("GET /items", h.traced("ListItems", h.listItems))
	mux.HandleFunc("GET /items/{ref}", h.traced("GetItem", h.getItem))
	mux.HandleFunc("POST /items/{ref}/stock", h.traced("AdjustItemStock", h.adjustStock))
	mux.HandleFunc("POST /items/{ref}/price", h.traced("SetItemPrice", h.setPrice))

	mux.HandleFunc("POST /cart", h.traced("AddToCart", h.addToCart))

	mux.HandleFunc("GET /orders", h.traced("ListOrders", h.listOrders))
	mux.HandleFunc("GET /orders/{id}", h.traced("GetOrder", h.getOrder))
	mux.HandleFunc("POST /orders/{id}/destination", h.traced("ChangeDestination", h.changeDestination))
	mux.HandleFunc("POST /orders/{id}/reconcile", h.traced("Reconcile", h.reconcile))
	mux.HandleFunc("POST /orders/{id}/{op}", h.traced("Transit", h.transitByID))
	mux.HandleFunc("POST /order-lines/{op}", h.traced("TransitByLine", h.transitByLine))

	if h.hub != nil {
		mux.HandleFunc("GET /ws/orders", h.hub.ServeWS)
	}
}

type handlerFunc func(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error

// traced 负责提取上游 trace 上下文、解析调用方，并统一把错误映射为 HTTP 状态码
func (h *SaleHandler) traced(name string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		tracer := otel.Tracer(serviceName)
		ctx, span := tracer.Start(ctx, "sale-service."+name)
		defer span.End()

		caller, err := callerFrom(r)
		if err == nil {
			span.SetAttributes(attribute.Int64("user.id", int64(caller.UserID)))
			err = fn(ctx, caller, w, r.WithContext(ctx))
		}
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Ctx(ctx).Error().Err(err).Str("route", name).Msg("request failed")
			} else {
				logger.Ctx(ctx).Info().Err(err).Str("route", name).Msg("request rejected")
			}
			writeError(w, status, err)
		}
	}
}

// callerFrom 读取网关注入的身份头，缺失时视为匿名用户
func callerFrom(r *http.Request) (domain.Caller, error) {
	var caller domain.Caller
	if raw := r.Header.Get(headerUserID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return caller, fmt.Errorf("%w: bad %s header", domain.ErrInvalidOperation, headerUserID)
		}
		caller.UserID = id
	}
	for _, role := range strings.Split(r.Header.Get(headerUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			caller.Roles = append(caller.Roles, role)
		}
	}
	return caller, nil
}

// ---- items ----

type createItemBody struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Price  int64  `json:"price"`
	Remain int64  `json:"remain"`
}

func (h *SaleHandler) createItem(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	if err := requireOperator(caller); err != nil {
		return err
	}
	var body createItemBody
	if err := decode(r, &body); err != nil {
		return err
	}
	item, err := h.service.CreateItem(ctx, application.CreateItemRequest{
		Name: body.Name, Kind: body.Kind, Price: body.Price, Remain: body.Remain,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, newItemView(item))
}

func (h *SaleHandler) listItems(ctx context.Context, _ domain.Caller, w http.ResponseWriter, r *http.Request) error {
	inStock := r.URL.Query().Get("in_stock") == "true"
	items, err := h.service.ListItems(ctx, inStock)
	if err != nil {
		return err
	}
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, newItemView(item))
	}
	return writeJSON(w, http.StatusOK, views)
}

func (h *SaleHandler) getItem(ctx context.Context, _ domain.Caller, w http.ResponseWriter, r *http.Request) error {
	item, err := h.service.GetItem(ctx, itemRefFromPath(r.PathValue("ref")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newItemView(item))
}

type adjustStockBody struct {
	Delta int64 `json:"delta"`
	Force bool  `json:"force"`
}

func (h *SaleHandler) adjustStock(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	if err := requireOperator(caller); err != nil {
		return err
	}
	var body adjustStockBody
	if err := decode(r, &body); err != nil {
		return err
	}
	item, err := h.service.AdjustItemStock(ctx, application.AdjustStockRequest{
		Item: itemRefFromPath(r.PathValue("ref")), Delta: body.Delta, Force: body.Force,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newItemView(item))
}

type setPriceBody struct {
	Price int64 `json:"price"`
}

func (h *SaleHandler) setPrice(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	if err := requireOperator(caller); err != nil {
		return err
	}
	var body setPriceBody
	if err := decode(r, &body); err != nil {
		return err
	}
	item, err := h.service.SetItemPrice(ctx, application.SetPriceRequest{
		Item: itemRefFromPath(r.PathValue("ref")), Price: body.Price,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newItemView(item))
}

// ---- cart & orders ----

type addToCartBody struct {
	ItemID        uint64 `json:"itemId"`
	ItemName      string `json:"itemName"`
	DestinationID uint64 `json:"destinationId"`
	Delta         int64  `json:"delta"`
}

func (h *SaleHandler) addToCart(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	var body addToCartBody
	if err := decode(r, &body); err != nil {
		return err
	}
	order, err := h.service.AddToCart(ctx, caller, application.AddToCartRequest{
		Item:          domain.ItemRef{ID: body.ItemID, Name: strings.TrimSpace(body.ItemName)},
		DestinationID: body.DestinationID,
		Delta:         body.Delta,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *SaleHandler) getOrder(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	id, err := orderIDFromPath(r)
	if err != nil {
		return err
	}
	order, err := h.service.GetOrder(ctx, caller, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

// listOrders 支持 customer_id 或 status 二选一过滤
func (h *SaleHandler) listOrders(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	var (
		orders []*domain.Order
		err    error
	)
	switch {
	case q.Get("status") != "" && q.Get("customer_id") != "":
		return fmt.Errorf("%w: filter by customer_id or status, not both", domain.ErrInvalidOperation)
	case q.Get("status") != "":
		orders, err = h.service.ListOrdersByStatus(ctx, caller, domain.Status(q.Get("status")))
	default:
		customerID := caller.UserID
		if raw := q.Get("customer_id"); raw != "" {
			if customerID, err = strconv.ParseUint(raw, 10, 64); err != nil {
				return fmt.Errorf("%w: bad customer_id", domain.ErrInvalidOperation)
			}
		}
		orders, err = h.service.ListCustomerOrders(ctx, caller, customerID)
	}
	if err != nil {
		return err
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	return writeJSON(w, http.StatusOK, views)
}

type transitFunc func(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error)

func (h *SaleHandler) operation(op string) (transitFunc, error) {
	switch domain.Transition(op) {
	case domain.TransitionPay:
		return h.service.Pay, nil
	case domain.TransitionCancel:
		return h.service.Cancel, nil
	case domain.TransitionSend:
		return h.service.Send, nil
	case domain.TransitionSign:
		return h.service.Sign, nil
	case domain.TransitionConsult:
		return h.service.Consult, nil
	case domain.TransitionDiscard:
		return h.service.Discard, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrNotFound, op)
}

func (h *SaleHandler) transitByID(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	run, err := h.operation(r.PathValue("op"))
	if err != nil {
		return err
	}
	id, err := orderIDFromPath(r)
	if err != nil {
		return err
	}
	order, err := run(ctx, caller, domain.OrderByID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

type orderLineBody struct {
	ItemID        uint64          `json:"itemId"`
	ItemName      string          `json:"itemName"`
	CustomerID    uint64          `json:"customerId"`
	DestinationID uint64          `json:"destinationId"`
	Statuses      []domain.Status `json:"statuses"`
}

func (h *SaleHandler) transitByLine(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	run, err := h.operation(r.PathValue("op"))
	if err != nil {
		return err
	}
	var body orderLineBody
	if err := decode(r, &body); err != nil {
		return err
	}
	customerID := body.CustomerID
	if customerID == 0 {
		customerID = caller.UserID
	}
	order, err := run(ctx, caller, domain.OrderByLine(domain.OrderLine{
		Item:          domain.ItemRef{ID: body.ItemID, Name: strings.TrimSpace(body.ItemName)},
		CustomerID:    customerID,
		DestinationID: body.DestinationID,
		Statuses:      body.Statuses,
	}))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

type changeDestinationBody struct {
	DestinationID uint64 `json:"destinationId"`
}

func (h *SaleHandler) changeDestination(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	id, err := orderIDFromPath(r)
	if err != nil {
		return err
	}
	var body changeDestinationBody
	if err := decode(r, &body); err != nil {
		return err
	}
	order, err := h.service.ChangeDestination(ctx, caller, application.ChangeDestinationRequest{
		Order: domain.OrderByID(id), DestinationID: body.DestinationID,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

type reconcileBody struct {
	To domain.Status `json:"to"`
}

func (h *SaleHandler) reconcile(ctx context.Context, caller domain.Caller, w http.ResponseWriter, r *http.Request) error {
	id, err := orderIDFromPath(r)
	if err != nil {
		return err
	}
	var body reconcileBody
	if err := decode(r, &body); err != nil {
		return err
	}
	order, err := h.service.Reconcile(ctx, caller, application.ReconcileRequest{OrderID: id, To: body.To})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newOrderView(order))
}

// ---- helpers ----

func requireOperator(caller domain.Caller) error {
	if !caller.IsOperator() {
		return fmt.Errorf("%w: user %d is not an operator", domain.ErrUnauthorized, caller.UserID)
	}
	return nil
}

// itemRefFromPath 纯数字按 ID 解析，否则按名称
func itemRefFromPath(raw string) domain.ItemRef {
	if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return domain.ItemByID(id)
	}
	return domain.ItemByName(raw)
}

func orderIDFromPath(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad order id %q", domain.ErrInvalidOperation, r.PathValue("id"))
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidOperation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// statusFor 把领域错误映射为 HTTP 状态码。
// 对账错误要先判断，它同时包裹了原始的远端错误。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReconciliationRequired):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRemoteService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	OrderID uint64 `json:"orderId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: errorKind(err), Message: err.Error()}
	var recon *domain.ReconciliationError
	if errors.As(err, &recon) {
		body.OrderID = recon.OrderID
	}
	_ = writeJSON(w, status, body)
}

func errorKind(err error) string {
	for _, kind := range []error{
		domain.ErrReconciliationRequired,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrInsufficientStock,
		domain.ErrInvalidState,
		domain.ErrInvalidOperation,
		domain.ErrUnauthorized,
		domain.ErrRemoteService,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
