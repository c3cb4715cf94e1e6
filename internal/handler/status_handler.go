package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/renraku/internal/model"
)

// statusListLimit はGET /statusで返す死活報告の最大件数。
const statusListLimit = 1000

// StatusStoreInterface は死活報告ハンドラーが必要とする永続化インターフェース。
type StatusStoreInterface interface {
	Create(ctx context.Context, check *model.StatusCheck) error
	List(ctx context.Context, limit int) ([]*model.StatusCheck, error)
}

// StatusHandler はクライアント死活報告のHTTPハンドラー。
type StatusHandler struct {
	store StatusStoreInterface
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(store StatusStoreInterface) *StatusHandler {
	return &StatusHandler{
		store: store,
	}
}

// statusCreateRequest はPOST /statusのリクエストボディ。
type statusCreateRequest struct {
	ClientName string `json:"client_name"`
}

// statusResponse は死活報告1件分のレスポンス。
type statusResponse struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// Create は死活報告を登録する。
// POST /status
func (h *StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req statusCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONを解釈できません"))
		return
	}

	if strings.TrimSpace(req.ClientName) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("client_nameが空です"))
		return
	}

	check := &model.StatusCheck{
		ID:         uuid.NewString(),
		ClientName: req.ClientName,
		Timestamp:  time.Now().UTC(),
	}

	if err := h.store.Create(r.Context(), check); err != nil {
		slog.Error("failed to create status check", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(check))
}

// List は死活報告を新しい順に最大1000件返す。
// GET /status
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	checks, err := h.store.List(r.Context(), statusListLimit)
	if err != nil {
		slog.Error("failed to list status checks", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	resp := make([]statusResponse, 0, len(checks))
	for _, c := range checks {
		resp = append(resp, toStatusResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// toStatusResponse はmodel.StatusCheckからAPIレスポンスに変換する。
func toStatusResponse(check *model.StatusCheck) statusResponse {
	return statusResponse{
		ID:         check.ID,
		ClientName: check.ClientName,
		Timestamp:  check.Timestamp,
	}
}
