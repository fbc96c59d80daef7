package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/settings"
)

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Settings, error)
	Update(ctx context.Context, userID string, params settings.UpdateParams) (*model.Settings, error)
}

// SettingsHandler はユーザー設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// updateSettingsRequest は設定更新リクエストのボディ。省略したフィールドは変更しない。
type updateSettingsRequest struct {
	Language      *string `json:"language"`
	Difficulty    *string `json:"difficulty"`
	QuestionCount *int    `json:"questionCount"`
}

// GetSettings は自分の設定を返す。
// GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// UpdateSettings は自分の設定を部分更新する。
// PUT /api/v1/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	s, err := h.service.Update(r.Context(), userID, settings.UpdateParams{
		Language:      req.Language,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// SetupSettingsRoutes は設定関連のルーティングを設定したchi.Routerを返す。
func SetupSettingsRoutes(service SettingsServiceInterface) http.Handler {
	r := chi.NewRouter()
	NewSettingsHandler(service).routes(r)
	return r
}

func (h *SettingsHandler) routes(r chi.Router) {
	r.Get("/api/v1/settings", h.GetSettings)
	r.Put("/api/v1/settings", h.UpdateSettings)
}
