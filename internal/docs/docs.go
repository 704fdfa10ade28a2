// ABOUTME: Locates and serves the agents document describing this server to clients
// ABOUTME: Raw markdown by default; rendered HTML via goldmark when the client asks

package docs

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
)

// ErrNotFound indicates no agents document exists.
var ErrNotFound = errors.New("agents document not found")

// FileNames are the accepted spellings of the document, in lookup order.
var FileNames = []string{"AGENTS.md", "agents.md", "Agents.md"}

// Routes returns every path the document is served on.
func Routes() []string {
	routes := make([]string, 0, 2*len(FileNames))
	for _, name := range FileNames {
		routes = append(routes, "/.well-known/"+name, "/"+name)
	}
	return routes
}

// Locator finds the agents document on disk. An explicit Path wins;
// otherwise each directory in Dirs is searched for any of FileNames.
type Locator struct {
	Path string
	Dirs []string
}

// Find returns the document's path and content, or ErrNotFound.
func (l *Locator) Find() (string, []byte, error) {
	var candidates []string
	if l.Path != "" {
		candidates = append(candidates, l.Path)
	} else {
		for _, dir := range l.Dirs {
			for _, name := range FileNames {
				candidates = append(candidates, filepath.Join(dir, name))
			}
		}
	}

	for _, path := range candidates {
		content, err := os.ReadFile(path)
		if err == nil {
			return path, content, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return "", nil, ErrNotFound
}

var page = template.Must(template.New("agents").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Content}}
</body>
</html>
`))

// Handler serves the agents document.
type Handler struct {
	locator *Locator
	logger  *slog.Logger
}

// NewHandler creates a Handler backed by locator.
func NewHandler(locator *Locator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{locator: locator, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, content, err := h.locator.Find()
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("failed to read agents document", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !wantsHTML(r) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(content)
		return
	}

	var body bytes.Buffer
	if err := goldmark.Convert(content, &body); err != nil {
		h.logger.Error("failed to convert markdown", "path", path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = page.Execute(w, struct {
		Title   string
		Content template.HTML
	}{
		Title:   filepath.Base(path),
		Content: template.HTML(body.String()),
	})
}

// wantsHTML reports whether the client prefers HTML over raw markdown.
func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "text/markdown")
}
