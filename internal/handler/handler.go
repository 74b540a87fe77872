// Package handler содержит HTTP-обработчики API приёма заказов и брифов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/impulsaweb/internal/metrics"
	"github.com/mmeshcher/impulsaweb/internal/middleware"
	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/plans"
	"github.com/mmeshcher/impulsaweb/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	pingTimeout  = 2 * time.Second
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, in model.OrderInput) (string, error)
	QueryOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (*model.Order, error)
	SubmitBrief(ctx context.Context, in model.BriefInput) (*model.BriefReceipt, error)
	GetBrief(ctx context.Context, orderID string) (*model.Brief, error)
}

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service Service
	logger  *zap.Logger
	admin   *middleware.AdminAuth
	metrics *metrics.Metrics
	pinger  Pinger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, admin *middleware.AdminAuth, m *metrics.Metrics) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		admin:   admin,
		metrics: m,
	}
}

type errorResponse struct {
	OK     bool               `json:"ok"`
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

type orderRequest struct {
	PlanID       looseString `json:"plan_id"`
	PlanName     looseString `json:"plan_name"`
	CustomerName looseString `json:"customer_name"`
	Email        looseString `json:"email"`
	Phone        looseString `json:"phone"`
	City         looseString `json:"city"`
	PayMethod    looseString `json:"pay_method"`
	PayType      looseString `json:"pay_type"`
	Amount       looseAmount `json:"amount"`
	Notes        looseString `json:"notes"`
}

type createOrderResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id"`
}

// CreateOrder регистрирует новый заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}

	orderID, err := h.service.CreateOrder(r.Context(), model.OrderInput{
		PlanID:       string(req.PlanID),
		PlanName:     string(req.PlanName),
		CustomerName: string(req.CustomerName),
		Email:        string(req.Email),
		Phone:        string(req.Phone),
		City:         string(req.City),
		PayMethod:    string(req.PayMethod),
		PayType:      string(req.PayType),
		Amount:       float64(req.Amount),
		Notes:        string(req.Notes),
	})
	if err != nil {
		h.writeError(w, err, "create order error")
		return
	}

	writeJSON(w, http.StatusOK, createOrderResponse{OK: true, OrderID: orderID})
}

type ordersResponse struct {
	OK     bool          `json:"ok"`
	Orders []model.Order `json:"orders"`
}

// GetOrders ищет заказы по order_id и/или email. Без фильтра доступно только администратору.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orders, err := h.service.QueryOrders(r.Context(), model.OrderFilter{
		OrderID:       q.Get("order_id"),
		Email:         q.Get("email"),
		AllowUnscoped: middleware.IsAdmin(r.Context()),
	})
	if err != nil {
		h.writeError(w, err, "query orders error")
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse{OK: true, Orders: orders})
}

type statusRequest struct {
	Status looseString `json:"status"`
}

type orderResponse struct {
	OK    bool         `json:"ok"`
	Order *model.Order `json:"order"`
}

// UpdateOrderStatus переводит заказ на следующий этап.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, string(req.Status))
	if err != nil {
		h.writeError(w, err, "update order status error", zap.String("order_id", orderID))
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{OK: true, Order: order})
}

type briefRequest struct {
	OrderID         looseString `json:"order_id"`
	BusinessName    looseString `json:"business_name"`
	BusinessType    looseString `json:"business_type"`
	TargetAudience  looseString `json:"target_audience"`
	Competitors     looseString `json:"competitors"`
	Colors          looseString `json:"colors"`
	Style           looseString `json:"style"`
	Pages           stringList  `json:"pages"`
	Market          looseString `json:"market"`
	Features        stringList  `json:"features"`
	ContentReady    looseString `json:"content_ready"`
	HasContent      looseString `json:"has_content"`
	Content         looseString `json:"content"`
	Notes           looseString `json:"notes"`
	AdditionalNotes looseString `json:"additional_notes"`
}

type briefReceiptResponse struct {
	OK bool `json:"ok"`
	*model.BriefReceipt
}

// SubmitBrief сохраняет анкету проекта для заказа.
func (h *Handler) SubmitBrief(w http.ResponseWriter, r *http.Request) {
	var req briefRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.SubmitBrief(r.Context(), model.BriefInput{
		OrderID:        string(req.OrderID),
		BusinessName:   string(req.BusinessName),
		BusinessType:   string(req.BusinessType),
		TargetAudience: string(req.TargetAudience),
		Competitors:    string(req.Competitors),
		Colors:         string(req.Colors),
		Style:          string(req.Style),
		Pages:          req.Pages,
		Market:         string(req.Market),
		Features:       req.Features,
		ContentReady:   firstNonEmpty(req.ContentReady, req.HasContent, req.Content),
		Notes:          firstNonEmpty(req.Notes, req.AdditionalNotes),
	})
	if err != nil {
		h.writeError(w, err, "submit brief error", zap.String("order_id", string(req.OrderID)))
		return
	}

	writeJSON(w, http.StatusOK, briefReceiptResponse{OK: true, BriefReceipt: receipt})
}

type briefResponse struct {
	OK    bool         `json:"ok"`
	Brief *model.Brief `json:"brief"`
}

// GetBrief возвращает бриф заказа; brief равен null, если анкета не заполнена.
func (h *Handler) GetBrief(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		orderID = r.URL.Query().Get("order_id")
	}

	brief, err := h.service.GetBrief(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err, "get brief error", zap.String("order_id", orderID))
		return
	}

	writeJSON(w, http.StatusOK, briefResponse{OK: true, Brief: brief})
}

type plansResponse struct {
	OK    bool         `json:"ok"`
	Plans []plans.Rule `json:"plans"`
}

// ListPlans отдаёт таблицу правил тарифов для построения анкеты.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, plansResponse{OK: true, Plans: plans.All()})
}

type adminLoginRequest struct {
	Token string `json:"token"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// AdminLogin проверяет административный токен и выдаёт подписанный cookie.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.admin.CheckToken(req.Token) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin token"})
		return
	}

	h.admin.SetAdminCookie(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// WithPinger включает проверку хранилища в /healthz.
func (h *Handler) WithPinger(p Pinger) *Handler {
	h.pinger = p
	return h
}

// Health отвечает на проверку живости и, если задан Pinger, доступности хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("storage ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, model.ErrValidation), errors.Is(err, service.ErrUnscopedQuery):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: strings.ToLower(http.StatusText(http.StatusInternalServerError))})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
