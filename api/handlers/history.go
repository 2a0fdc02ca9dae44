package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/naya/api"
	"github.com/BaSui01/naya/history"
	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 聊天历史 Handler
// =============================================================================

// MaxHistoryLimit 单次查询的最大条数
const MaxHistoryLimit = 500

// HistoryHandler 聊天历史的查询、追加与清空。store 为 nil 表示未启用持久化。
type HistoryHandler struct {
	store   history.Store
	backend string
	logger  *zap.Logger
}

// NewHistoryHandler 创建历史处理器
func NewHistoryHandler(store history.Store, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := "none"
	if store != nil {
		backend = history.BackendName(store)
	}
	return &HistoryHandler{
		store:   store,
		backend: backend,
		logger:  logger.With(zap.String("component", "history_api"), zap.String("backend", backend)),
	}
}

// ServeHTTP 按方法分发
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"chat history is disabled", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.HandleList(w, r)
	case http.MethodPost:
		h.HandleSave(w, r)
	case http.MethodDelete:
		h.HandleClear(w, r)
	default:
		MethodNotAllowed(w, r, "GET, POST, DELETE")
	}
}

// HandleList 返回最近 limit 条历史（升序）
// @Summary 查询聊天历史
// @Tags 历史
// @Produce json
// @Param limit query int false "条数，默认 50，最大 500"
// @Success 200 {object} Response{data=api.HistoryResponse}
// @Failure 400 {object} Response
// @Router /api/v1/history [get]
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxHistoryLimit {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
				"limit must be between 1 and "+strconv.Itoa(MaxHistoryLimit), h.logger)
			return
		}
		limit = n
	}

	records, err := h.store.History(r.Context(), limit)
	if err != nil {
		h.storeError(w, r, "load chat history", err)
		return
	}

	resp := api.HistoryResponse{Backend: h.backend, Messages: make([]api.HistoryMessage, 0, len(records))}
	for _, rec := range records {
		resp.Messages = append(resp.Messages, toAPIMessage(rec))
	}
	WriteSuccess(w, r, resp)
}

// HandleSave 追加一条历史
// @Summary 保存聊天消息
// @Tags 历史
// @Accept json
// @Produce json
// @Param request body api.SaveHistoryRequest true "消息"
// @Success 201 {object} Response{data=api.HistoryMessage}
// @Failure 400 {object} Response
// @Router /api/v1/history [post]
func (h *HistoryHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SaveHistoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		e, ok := types.AsError(err)
		if !ok {
			e = types.NewError(types.ErrInvalidRequest, err.Error())
		}
		WriteError(w, r, e, h.logger)
		return
	}

	rec := history.Record{Role: req.Role, Content: req.Content}
	if req.CreatedAt != nil {
		rec.CreatedAt = *req.CreatedAt
	}
	saved, err := h.store.Save(r.Context(), rec)
	if err != nil {
		h.storeError(w, r, "save chat message", err)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      toAPIMessage(saved),
		Timestamp: time.Now().UTC(),
		RequestID: requestID(w, r),
	})
}

// HandleClear 清空历史
// @Summary 清空聊天历史
// @Tags 历史
// @Success 204
// @Router /api/v1/history [delete]
func (h *HistoryHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.storeError(w, r, "clear chat history", err)
		return
	}
	h.logger.Info("chat history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, history.ErrInvalidInput):
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()).
			WithHTTPStatus(http.StatusBadRequest), h.logger)
	case errors.Is(err, history.ErrStoreClosed):
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "chat history is unavailable").
			WithCause(err), h.logger)
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to "+op).
			WithCause(err).
			WithRetryable(true), h.logger)
	}
}

func toAPIMessage(rec history.Record) api.HistoryMessage {
	return api.HistoryMessage{
		ID:         rec.ID,
		Role:       rec.Role,
		Content:    rec.Content,
		TokenCount: rec.TokenCount,
		CreatedAt:  rec.CreatedAt,
	}
}
