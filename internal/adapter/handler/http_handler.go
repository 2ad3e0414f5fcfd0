package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/labstock/internal/adapter/sheet"
	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/core/service"
)

const maxBodyBytes = 8 << 20

// SyncController is the part of the sync engine the API drives directly.
type SyncController interface {
	Push(ctx context.Context, snapshot *domain.Snapshot) (service.PushOutcome, error)
	Pull(ctx context.Context) (service.PullOutcome, error)
	Report() service.SyncReport
}

type HTTPHandler struct {
	inventory *service.InventoryService
	sync      SyncController
	auth      *Authenticator
	logger    *zap.Logger
	now       func() time.Time
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type ConfigRequest struct {
	EndpointURL *string `json:"endpointUrl"`
	ShareURL    *string `json:"shareUrl"`
	AutoSync    *bool   `json:"autoSync"`
}

type ConfigResponse struct {
	domain.SyncConfig
	Link domain.LinkState `json:"link"`
}

// userView hides the password from every response.
type userView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	FullName string      `json:"fullName"`
	Role     domain.Role `json:"role"`
	Room     domain.Room `json:"room"`
}

func viewOf(u domain.UserAccount) userView {
	return userView{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role, Room: u.Room}
}

func NewHTTPHandler(inventory *service.InventoryService, sync SyncController, auth *Authenticator, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		inventory: inventory,
		sync:      sync,
		auth:      auth,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts the API on mux. Everything under /api except login
// requires a bearer token.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/login", h.Login)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/logout", h.Logout)

	api.HandleFunc("GET /api/items", h.ListItems)
	api.HandleFunc("POST /api/items", h.CreateItem)
	api.HandleFunc("PUT /api/items/{id}", h.UpdateItem)
	api.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)
	api.HandleFunc("POST /api/movements", h.RecordMovements)
	api.HandleFunc("GET /api/transactions", h.ListTransactions)

	api.HandleFunc("GET /api/suppliers", h.ListSuppliers)
	api.HandleFunc("POST /api/suppliers", h.CreateSupplier)
	api.HandleFunc("PUT /api/suppliers/{id}", h.UpdateSupplier)
	api.HandleFunc("DELETE /api/suppliers/{id}", h.DeleteSupplier)

	api.HandleFunc("GET /api/users", RequireRole(domain.RoleAdmin, h.ListUsers))
	api.HandleFunc("POST /api/users", RequireRole(domain.RoleAdmin, h.CreateUser))
	api.HandleFunc("PUT /api/users/{id}", RequireRole(domain.RoleAdmin, h.UpdateUser))
	api.HandleFunc("DELETE /api/users/{id}", RequireRole(domain.RoleAdmin, h.DeleteUser))

	api.HandleFunc("GET /api/config", h.GetConfig)
	api.HandleFunc("PUT /api/config", h.UpdateConfig)
	api.HandleFunc("POST /api/sync/push", h.SyncPush)
	api.HandleFunc("POST /api/sync/pull", h.SyncPull)
	api.HandleFunc("GET /api/sync/status", h.SyncStatus)

	api.HandleFunc("GET /api/alerts", h.Alerts)
	api.HandleFunc("GET /api/dashboard", h.Dashboard)
	api.HandleFunc("GET /api/export.xlsx", h.Export)
	api.HandleFunc("POST /api/restore", RequireRole(domain.RoleAdmin, h.Restore))
	api.HandleFunc("POST /api/reset", RequireRole(domain.RoleAdmin, h.Reset))

	mux.Handle("/api/", h.auth.Middleware(api))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"sync":   string(h.sync.Report().Status),
	})
}

// Session

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.inventory.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		writeError(w, err)
		return
	}

	h.logger.Info("user logged in", zap.String("username", user.Username))
	writeJSON(w, http.StatusOK, Response{Success: true, Data: LoginResponse{Token: token, User: viewOf(user)}})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.inventory.Logout()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "logged out"})
}

// Items and movements

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.inventory.Items()})
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item domain.InventoryItem
	if !decodeBody(w, r, &item) {
		return
	}
	created, err := h.inventory.AddItem(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: created})
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var item domain.InventoryItem
	if !decodeBody(w, r, &item) {
		return
	}
	item.ID = r.PathValue("id")
	updated, err := h.inventory.UpdateItem(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: updated})
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "item deleted"})
}

// RecordMovements accepts a single movement object or an array of them.
// An array is recorded as one cart and persisted together. Outbound lines
// without a requester are attributed to the caller.
func (h *HTTPHandler) RecordMovements(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}
	body = bytes.TrimSpace(body)

	requester := ""
	if claims, ok := ClaimsFrom(r.Context()); ok {
		requester = claims.Username
	}

	if len(body) > 0 && body[0] == '[' {
		var txs []domain.Transaction
		if err := json.Unmarshal(body, &txs); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
			return
		}
		for i := range txs {
			if txs[i].Type == domain.TransactionOut && txs[i].Requester == "" {
				txs[i].Requester = requester
			}
		}
		recorded, err := h.inventory.RecordMovements(r.Context(), txs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, Response{Success: true, Data: recorded})
		return
	}

	var tx domain.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}
	if tx.Type == domain.TransactionOut && tx.Requester == "" {
		tx.Requester = requester
	}
	recorded, err := h.inventory.RecordMovement(r.Context(), tx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: recorded})
}

// ListTransactions returns the log newest first; limit trims it.
func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.inventory.Transactions()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "limit must be a non-negative integer"})
			return
		}
		if limit < len(txs) {
			txs = txs[:limit]
		}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: txs})
}

// Suppliers

func (h *HTTPHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.inventory.Suppliers()})
}

func (h *HTTPHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var sup domain.Supplier
	if !decodeBody(w, r, &sup) {
		return
	}
	created, err := h.inventory.AddSupplier(r.Context(), sup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: created})
}

func (h *HTTPHandler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var sup domain.Supplier
	if !decodeBody(w, r, &sup) {
		return
	}
	sup.ID = r.PathValue("id")
	if err := h.inventory.UpdateSupplier(r.Context(), sup); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: sup})
}

func (h *HTTPHandler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DeleteSupplier(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "supplier deleted"})
}

// Users

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users := h.inventory.Users()
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOf(u))
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: views})
}

func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var u domain.UserAccount
	if !decodeBody(w, r, &u) {
		return
	}
	created, err := h.inventory.AddUser(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: viewOf(created)})
}

func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var u domain.UserAccount
	if !decodeBody(w, r, &u) {
		return
	}
	u.ID = r.PathValue("id")
	if err := h.inventory.UpdateUser(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: viewOf(u)})
}

func (h *HTTPHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "user deleted"})
}

// Sync configuration and control

func (h *HTTPHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.inventory.SyncConfig()
	writeJSON(w, http.StatusOK, Response{Success: true, Data: ConfigResponse{
		SyncConfig: cfg,
		Link:       service.ClassifyLink(cfg.EndpointURL),
	}})
}

// UpdateConfig applies only the fields present in the body, all or none.
func (h *HTTPHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := h.inventory.UpdateSyncConfig(r.Context(), service.SyncConfigUpdate{
		EndpointURL: req.EndpointURL,
		ShareURL:    req.ShareURL,
		AutoSync:    req.AutoSync,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.GetConfig(w, r)
}

func (h *HTTPHandler) SyncPush(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.sync.Push(r.Context(), nil)
	if err != nil {
		h.logger.Warn("manual push failed", zap.String("outcome", string(outcome)), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: string(outcome)})
}

func (h *HTTPHandler) SyncPull(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.sync.Pull(r.Context())
	if err != nil {
		h.logger.Warn("manual pull failed", zap.String("outcome", string(outcome)), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: string(outcome)})
}

func (h *HTTPHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.sync.Report()})
}

// Queries

type alerts struct {
	LowStock []domain.InventoryItem `json:"lowStock"`
	Expiring []service.ExpiringItem `json:"expiring"`
}

func (h *HTTPHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: alerts{
		LowStock: h.inventory.LowStock(),
		Expiring: h.inventory.ExpiringSoon(h.now(), service.ExpiryWindow),
	}})
}

func (h *HTTPHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.inventory.Dashboard(h.now())})
}

// Maintenance

func (h *HTTPHandler) Export(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	data, err := sheet.ExportWorkbook(h.inventory.Snapshot(), now)
	if err != nil {
		h.logger.Error("failed to export workbook", zap.Error(err))
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="labstock-`+now.Format("20060102")+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *HTTPHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var snap domain.Snapshot
	if !decodeBody(w, r, &snap) {
		return
	}
	if err := h.inventory.Restore(r.Context(), snap); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("backup restored",
		zap.Int("items", len(snap.Items)),
		zap.Int("transactions", len(snap.Transactions)),
	)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "backup restored"})
}

func (h *HTTPHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "store reset"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, service.ErrInvalidMovement),
		errors.Is(err, service.ErrInvalidSupplier),
		errors.Is(err, service.ErrInvalidUser),
		errors.Is(err, service.ErrUnknownItem),
		errors.Is(err, service.ErrEditorShareLink),
		errors.Is(err, service.ErrShareLinkTooShort):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "invalid username or password"
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
		message = "admin role required"
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrDuplicateItem),
		errors.Is(err, service.ErrDuplicateUsername):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, service.ErrSpreadsheetLink):
		status = http.StatusUnprocessableEntity
		message = "endpoint must be the deployed script URL ending in /exec, not the spreadsheet link"
	case errors.Is(err, service.ErrRemoteUnavailable):
		status = http.StatusBadGateway
		message = "remote unavailable"
	case errors.Is(err, service.ErrMalformedPayload):
		status = http.StatusBadGateway
		message = "remote returned an unusable catalog"
	case errors.Is(err, service.ErrSyncQueueFull):
		status = http.StatusServiceUnavailable
		message = "sync queue full"
	}

	writeJSON(w, status, Response{
		Success: false,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
