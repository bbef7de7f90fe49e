package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/dashboard"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultTimeLayout renders like an en-US locale string: "3/4/2025, 1:05:09 PM".
const DefaultTimeLayout = "1/2/2006, 3:04:05 PM"

type renderer struct {
	templates *template.Template
}

func newRenderer(currency, layout string, loc *time.Location) (*renderer, error) {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if loc == nil {
		loc = time.Local
	}

	funcs := template.FuncMap{
		"money": func(a bankapi.Amount) string {
			return currency + a.String()
		},
		"when": func(ts bankapi.Timestamp) string {
			if ts.IsZero() {
				return ""
			}
			return ts.InLocation(loc).Format(layout)
		},
		"lower": strings.ToLower,
	}

	t, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &renderer{templates: t}, nil
}

type dashboardPage struct {
	Name  string
	View  *dashboard.ViewState
	Kinds []bankapi.TransferKind
}

type loginPage struct {
	Error string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.renderer.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("template render failed",
			zap.String("request_id", requestID(r)),
			zap.String("template", name),
			zap.Error(err),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
