package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/renraku/internal/auth"
	"github.com/hitoshi/renraku/internal/middleware"
	"github.com/hitoshi/renraku/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
// いずれもセッションIDをキーに動作する。
type UserServiceInterface interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.SessionData, error)
	UpdatePhone(ctx context.Context, sessionID, phone string, consentGiven bool) (*model.SessionData, error)
}

// UserDirectoryInterface はユーザーディレクトリのサービスインターフェース。
type UserDirectoryInterface interface {
	List(ctx context.Context, limit int) ([]*model.User, error)
	Withdraw(ctx context.Context, userID string) error
}

// PhoneUpdateRecorder は電話番号更新のメトリクス記録インターフェース。
type PhoneUpdateRecorder interface {
	RecordPhoneUpdate()
}

// userListLimit は/usersで返すユーザーの最大件数。
const userListLimit = 1000

// UserHandler はユーザー情報のHTTPハンドラー。
type UserHandler struct {
	service   UserServiceInterface
	directory UserDirectoryInterface
	recorder  PhoneUpdateRecorder // nil許容
}

// NewUserHandler はUserHandlerを生成する。recorderはnilを許容する。
func NewUserHandler(service UserServiceInterface, directory UserDirectoryInterface, recorder PhoneUpdateRecorder) *UserHandler {
	return &UserHandler{
		service:   service,
		directory: directory,
		recorder:  recorder,
	}
}

// phoneUpdateRequest はPOST /user/phoneのリクエストボディ。
// consent_given省略時はtrueとして扱う。
type phoneUpdateRequest struct {
	Phone        string `json:"phone"`
	ConsentGiven *bool  `json:"consent_given"`
}

// userResponse はGET /usersの1ユーザー分のレスポンス。
type userResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Picture      string    `json:"picture,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	ConsentGiven bool      `json:"consent_given"`
	CreatedAt    time.Time `json:"created_at"`
}

// Me は現在のログインユーザーのスナップショットを返す。
// GET /user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthenticated(w)
		return
	}

	data, err := h.service.GetCurrentUser(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			middleware.WriteUnauthenticated(w)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// UpdatePhone は電話番号と同意フラグを更新する。
// POST /user/phone
// ユーザーディレクトリとセッションスナップショットの両方を更新する。
func (h *UserHandler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthenticated(w)
		return
	}

	var req phoneUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONを解釈できません"))
		return
	}

	consentGiven := true
	if req.ConsentGiven != nil {
		consentGiven = *req.ConsentGiven
	}

	data, err := h.service.UpdatePhone(r.Context(), sessionID, req.Phone, consentGiven)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			middleware.WriteUnauthenticated(w)
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordPhoneUpdate()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Phone number updated successfully",
		"user":    data,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /user/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthenticated(w)
		return
	}

	if err := h.directory.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUsers は全ユーザーを作成日時降順で返す。
// GET /users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.List(r.Context(), userListLimit)
	if err != nil {
		slog.Error("failed to list users", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:           u.ID,
			Email:        u.Email,
			Name:         u.Name,
			Picture:      u.Picture,
			Phone:        u.Phone,
			ConsentGiven: u.ConsentGiven,
			CreatedAt:    u.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
