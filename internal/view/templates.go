package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/web"
)

const baseLayout = "layouts/base.html"

// Engine renders HTML templates. Each page is parsed into its own set on top
// of the shared layouts and partials so pages can all define "content".
type Engine struct {
	pages      map[string]*template.Template
	standalone *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Tenant      *shared.Tenant
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	return newEngine(web.Templates)
}

func newEngine(fsys fs.FS) (*Engine, error) {
	base, err := template.New("root").Funcs(Funcs()).ParseFS(fsys, "templates/layouts/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse layouts: %w", err)
	}

	pages := make(map[string]*template.Template)
	err = fs.WalkDir(fsys, "templates/pages", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		set, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := set.ParseFS(fsys, path); err != nil {
			return fmt.Errorf("view: parse %s: %w", path, err)
		}
		pages[strings.TrimPrefix(path, "templates/")] = set
		return nil
	})
	if err != nil {
		return nil, err
	}

	standalone, err := template.New("standalone").Funcs(Funcs()).ParseFS(fsys, "templates/documents/*.html", "templates/emails/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse documents: %w", err)
	}
	return &Engine{pages: pages, standalone: standalone}, nil
}

// Render executes a page inside the base layout.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a page inside the base layout with the given status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	set, ok := e.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	// Buffer so that a failing template never leaves a half-written page.
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, baseLayout, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Execute renders a standalone template (documents, emails) without layout.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.standalone.ExecuteTemplate(w, name, data)
}

// Has reports whether a page template exists.
func (e *Engine) Has(name string) bool {
	_, ok := e.pages[name]
	return ok
}
