// Package render produces announcement body text. The Static renderer expands
// per-event templates; the AI renderer asks an OpenAI-compatible endpoint for
// flavor text and falls back to Static on any failure. Both always return a
// non-empty string, so callers never branch on rendering errors.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/monitor"
)

const (
	defaultLiveTemplate  = "🔴 {{.Name}} is live on {{.Platform}}{{if .Title}}: {{.Title}}{{end}}{{if .Category}} [{{.Category}}]{{end}}\n{{.URL}}"
	defaultEndedTemplate = "{{.Name}}'s {{.Platform}} stream has ended.{{if .Title}} They were streaming: {{.Title}}{{end}}\nCatch the replay: {{.URL}}"
)

// vars is the data bag templates see.
type vars struct {
	Name     string
	Platform string
	Handle   string
	Title    string
	Category string
	Viewers  int
	URL      string
	Social   string
}

// Static renders announcements from text templates. Bad custom templates are
// rejected at construction, never at render time.
type Static struct {
	live  *template.Template
	ended *template.Template
	log   *slog.Logger
}

// NewStatic compiles the live and ended templates, using the built-in defaults
// for any that are empty.
func NewStatic(liveTmpl, endedTmpl string) (*Static, error) {
	if liveTmpl == "" {
		liveTmpl = defaultLiveTemplate
	}
	if endedTmpl == "" {
		endedTmpl = defaultEndedTemplate
	}
	live, err := template.New("live").Parse(liveTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse live template: %w", err)
	}
	ended, err := template.New("ended").Parse(endedTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse ended template: %w", err)
	}
	return &Static{
		live:  live,
		ended: ended,
		log:   slog.Default().With(slog.String("component", "render")),
	}, nil
}

// Render expands the template for the event type. Template execution errors
// fall back to a minimal guaranteed string.
func (s *Static) Render(_ context.Context, account config.Account, ev monitor.Event, platform string) string {
	tmpl := s.live
	if ev.Type == monitor.EventLiveEnded {
		tmpl = s.ended
	}
	v := vars{
		Name:     account.Display(),
		Platform: account.Platform,
		Handle:   account.Handle,
		Title:    ev.Sample.Title,
		Category: ev.Sample.Category,
		Viewers:  ev.Sample.ViewerCount,
		URL:      account.WatchURL(),
		Social:   platform,
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, v); err != nil {
		s.log.Error("template execution failed; using fallback", slog.Any("error", err))
		return Fallback(account, ev)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return Fallback(account, ev)
	}
	return out
}

// Fallback is the string of last resort; it must never be empty.
func Fallback(account config.Account, ev monitor.Event) string {
	if ev.Type == monitor.EventLiveEnded {
		return fmt.Sprintf("%s's stream has ended. %s", account.Display(), account.WatchURL())
	}
	return fmt.Sprintf("%s is live! %s", account.Display(), account.WatchURL())
}
