package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
)

// renderHTML はコンポーネントを指定ステータスで描画する。
func renderHTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("failed to render page",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
