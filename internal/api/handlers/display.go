package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Templates parses the embedded page templates for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))
}

type CodeSource interface {
	Current() string
}

type DisplayData struct {
	Title          string
	OTP            string
	RefreshSeconds int
}

// DisplayHandler serves the kiosk screen showing the current access code.
type DisplayHandler struct {
	codes   CodeSource
	title   string
	refresh time.Duration
}

func NewDisplayHandler(codes CodeSource, title string, refresh time.Duration) *DisplayHandler {
	if refresh < time.Second {
		refresh = 3 * time.Second
	}
	return &DisplayHandler{
		codes:   codes,
		title:   title,
		refresh: refresh,
	}
}

func (h *DisplayHandler) Index(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "display", DisplayData{
		Title:          h.title,
		OTP:            h.codes.Current(),
		RefreshSeconds: int(h.refresh / time.Second),
	})
}
