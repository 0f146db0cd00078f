package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"document-qa/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type noticeKind string

const (
	noticeInfo  noticeKind = "info"
	noticeError noticeKind = "error"
)

type notice struct {
	Kind    noticeKind
	Message string
}

type turnView struct {
	Role string
	Body template.HTML
}

type sourceView struct {
	Label   string
	Content string
}

type pageData struct {
	Title      string
	Accept     string
	Ready      bool
	Notice     *notice
	Transcript []turnView
	Sources    []sourceView
}

type renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

func newRenderer() (*renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	return &renderer{tmpl: tmpl, md: md}, nil
}

func (r *renderer) render(w io.Writer, data pageData) error {
	return r.tmpl.ExecuteTemplate(w, "index.html", data)
}

// markdown converts text to HTML. Raw HTML in text is dropped by goldmark.
func (r *renderer) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(strings.TrimSpace(buf.String()))
}

func (r *renderer) transcript(turns []models.Turn) []turnView {
	out := make([]turnView, len(turns))
	for i, t := range turns {
		body := template.HTML("<p>" + template.HTMLEscapeString(t.Content) + "</p>")
		if t.Role == models.RoleAssistant {
			body = r.markdown(t.Content)
		}
		out[i] = turnView{Role: t.Role, Body: body}
	}
	return out
}

// sourceViews labels the first limit snippets as "file, page N".
func sourceViews(sources []models.SourceSnippet, limit int) []sourceView {
	n := min(limit, len(sources))
	out := make([]sourceView, n)
	for i, s := range sources[:n] {
		out[i] = sourceView{
			Label:   fmt.Sprintf("%s, page %d", s.Source, s.Page),
			Content: s.Content,
		}
	}
	return out
}
