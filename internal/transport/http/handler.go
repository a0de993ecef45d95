package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/repository/postgres"
	"github.com/asquebay/cafe-order-service/internal/service"
)

// IdempotencyHeader — заголовок, в котором клиент присылает ключ идемпотентности
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// OrderService определяет интерфейс сервиса, с которым работает хэндлер
// это позволяет хэндлеру не зависеть от конкретной реализации сервиса
type OrderService interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest, idempotencyKey string) (model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	ListActiveOrders(ctx context.Context, dest model.Destination) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) (model.Order, error)
	ListMenu(ctx context.Context) ([]model.MenuItem, error)
	GenerateBill(ctx context.Context, dest model.Destination) (model.Bill, error)
	ListBills(ctx context.Context, dest model.Destination) ([]model.Bill, error)
}

// Handler обрабатывает HTTP-запросы
type Handler struct {
	service OrderService
	log     *slog.Logger
	mux     *http.ServeMux
}

// NewHandler создает новый экземпляр Handler
func NewHandler(service OrderService, log *slog.Logger) *Handler {
	h := &Handler{
		service: service,
		log:     log,
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP делает Handler совместимым с http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes регистрирует все эндпоинты
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /menu", h.listMenu)

	h.mux.HandleFunc("POST /orders", h.createOrder)
	h.mux.HandleFunc("GET /orders", h.listOrders)
	h.mux.HandleFunc("GET /orders/{id}", h.getOrder)
	h.mux.HandleFunc("PATCH /orders/{id}", h.updateStatus)

	h.mux.HandleFunc("POST /bills", h.generateBill)
	h.mux.HandleFunc("GET /bills", h.listBills)
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListMenu(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, items)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > 64 {
		h.respondError(w, http.StatusBadRequest, IdempotencyHeader+" is too long")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req, key)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListActiveOrders(r.Context(), destinationFromQuery(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondServiceError(w, err)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) generateBill(w http.ResponseWriter, r *http.Request) {
	var dest model.Destination
	if !h.decodeBody(w, r, &dest) {
		return
	}

	bill, err := h.service.GenerateBill(r.Context(), dest)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, bill)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.service.ListBills(r.Context(), destinationFromQuery(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, bills)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func destinationFromQuery(r *http.Request) model.Destination {
	q := r.URL.Query()
	return model.Destination{
		TableUniqueID: strings.TrimSpace(q.Get("table_unique_id")),
		RoomUniqueID:  strings.TrimSpace(q.Get("room_unique_id")),
	}
}

// respondServiceError переводит ошибку сервиса в HTTP-статус
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, postgres.ErrOrderNotFound):
		h.respondError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, service.ErrInvalidTransition):
		h.respondError(w, http.StatusConflict, service.ErrInvalidTransition.Error())
	case errors.Is(err, postgres.ErrNothingToBill):
		h.respondError(w, http.StatusConflict, postgres.ErrNothingToBill.Error())
	default:
		h.log.Error("internal server error", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
