package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// DBPinger はヘルスチェックで使うDB疎通確認インターフェース。
// *sql.DBがそのまま実装する。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// qrImageSize は生成するQRコード画像の一辺のピクセル数。
const qrImageSize = 256

// SystemHandler はサービス情報・ヘルスチェック・QRコードのHTTPハンドラー。
type SystemHandler struct {
	db          DBPinger
	frontendURL string
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(db DBPinger, frontendURL string) *SystemHandler {
	return &SystemHandler{
		db:          db,
		frontendURL: frontendURL,
	}
}

// Root はサービス識別情報を返す。
// GET /
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "OAuth Social Login API",
	})
}

// Health はDBへの疎通を確認して結果を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// QR はフロントエンドURLのQRコードをPNGで返す。
// GET /qr
func (h *SystemHandler) QR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.frontendURL, qrcode.Medium, qrImageSize)
	if err != nil {
		slog.Error("failed to generate qr code", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}
