// Package documents provides DocumentProvider implementations: a filesystem
// provider for plain text, Markdown and XLSX files, and an in-memory provider.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mercator-hq/auditor/pkg/audit"
)

// Config configures an FSProvider.
type Config struct {
	// Root is the directory document ids are resolved against.
	Root string `yaml:"root"`

	// MaxFileSize rejects larger files.
	// Default: 10 MiB
	MaxFileSize int64 `yaml:"max_file_size"`
}

const defaultMaxFileSize = 10 << 20

// FSProvider reads documents from a directory tree. A document id is the
// slash-separated path of the file relative to Root.
type FSProvider struct {
	config Config
	logger *slog.Logger
}

// NewFSProvider creates a filesystem provider.
func NewFSProvider(config Config, logger *slog.Logger) *FSProvider {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSProvider{config: config, logger: logger.With("component", "documents")}
}

// GetDocumentContent reads and parses the document. Text and Markdown files
// are returned as text for the orchestrator's chunker; XLSX workbooks come
// back pre-chunked into table rows.
func (p *FSProvider) GetDocumentContent(ctx context.Context, documentID string) (*audit.DocumentContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.resolve(documentID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, audit.NewNotFoundError("document", documentID)
		}
		return nil, audit.NewUpstreamError("documents", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: document %q is a directory", audit.ErrInvalidRequest, documentID)
	}
	if info.Size() > p.config.MaxFileSize {
		return nil, fmt.Errorf("%w: document %q is %d bytes, limit %d",
			audit.ErrInvalidRequest, documentID, info.Size(), p.config.MaxFileSize)
	}

	var content *audit.DocumentContent
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		content, err = readWorkbook(documentID, path)
	case "", ".txt", ".md", ".markdown", ".text":
		content, err = readText(documentID, path)
	default:
		return nil, fmt.Errorf("%w: unsupported document format %q", audit.ErrInvalidRequest, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse document %q: %w", documentID, err)
	}
	content.Metadata["path"] = path

	p.logger.Debug("document loaded",
		"document_id", documentID,
		"bytes", len(content.Text),
		"chunks", len(content.Chunks),
	)
	return content, nil
}

// resolve maps an id to a file below Root, rejecting ids that escape it.
func (p *FSProvider) resolve(documentID string) (string, error) {
	rel := filepath.FromSlash(documentID)
	if documentID == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: invalid document id %q", audit.ErrInvalidRequest, documentID)
	}
	return filepath.Join(p.config.Root, rel), nil
}

func readText(documentID, path string) (*audit.DocumentContent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(raw), "\uFEFF")
	return &audit.DocumentContent{
		ID:       documentID,
		Title:    titleOf(text, path),
		Text:     text,
		Metadata: map[string]string{"format": "text"},
	}, nil
}

// titleOf returns the first Markdown heading, or the file name.
func titleOf(text, path string) string {
	for _, line := range strings.SplitN(text, "\n", 20) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// MemoryProvider serves documents registered in code. Useful for tests and
// for embedding the auditor behind another document store.
type MemoryProvider struct {
	mu   sync.RWMutex
	docs map[string]*audit.DocumentContent
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{docs: make(map[string]*audit.DocumentContent)}
}

// Put registers or replaces a document.
func (p *MemoryProvider) Put(doc *audit.DocumentContent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[doc.ID] = doc
}

// PutText registers a plain-text document.
func (p *MemoryProvider) PutText(id, text string) {
	p.Put(&audit.DocumentContent{ID: id, Text: text})
}

func (p *MemoryProvider) GetDocumentContent(ctx context.Context, documentID string) (*audit.DocumentContent, error) {
	p.mu.RLock()
	doc, ok := p.docs[documentID]
	p.mu.RUnlock()
	if !ok {
		return nil, audit.NewNotFoundError("document", documentID)
	}
	c := *doc
	c.Chunks = append([]audit.DocumentChunk(nil), doc.Chunks...)
	return &c, nil
}
