// Package fswalk exposes a file tree as a traversal source: directories are
// expanded, matching regular files are handed to a Handler.
package fswalk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/pkg/logging"
	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

// Root is the node naming the top of the file system.
const Root = "."

// File describes a regular file selected for processing.
type File struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Handler processes one file.
type Handler func(ctx context.Context, file File) error

// Config holds source configuration.
type Config struct {
	// Include lists glob patterns a file must match (path or base name).
	// "**" spans any number of directories. Empty matches all files.
	Include []string

	// Exclude lists glob patterns that skip files and prune directories.
	Exclude []string

	// SkipHidden ignores entries whose name starts with a dot.
	SkipHidden bool

	// Handler is called for every selected file (REQUIRED).
	Handler Handler
}

// Source walks an fs.FS. Nodes are slash-separated paths relative to the
// file system root, with Root for the root itself.
type Source struct {
	fsys   fs.FS
	config Config
	logger zerolog.Logger
}

// Ensure Source implements traversal.Source.
var _ traversal.Source[string] = (*Source)(nil)

// NewSource creates a Source over fsys.
func NewSource(fsys fs.FS, cfg Config) (*Source, error) {
	if fsys == nil {
		return nil, errors.New("file system is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	for _, pattern := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}
	return &Source{
		fsys:   fsys,
		config: cfg,
		logger: logging.NewLogger("fswalk"),
	}, nil
}

// HasChildren implements traversal.Source.
func (s *Source) HasChildren(_ context.Context, node string) (bool, error) {
	info, err := fs.Stat(s.fsys, node)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", node, err)
	}
	return info.IsDir(), nil
}

// GetChildren implements traversal.Source. Entries are returned in name
// order; hidden and excluded entries are left out.
func (s *Source) GetChildren(_ context.Context, node string) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, node)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", node, err)
	}

	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		child := path.Join(node, entry.Name())
		if s.skipped(child) {
			s.logger.Debug().Str("node", child).Msg("Skipping entry")
			continue
		}
		children = append(children, child)
	}
	return children, nil
}

// ShouldProcess implements traversal.Source.
func (s *Source) ShouldProcess(_ context.Context, node string) (bool, error) {
	info, err := fs.Stat(s.fsys, node)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", node, err)
	}
	if !info.Mode().IsRegular() || s.skipped(node) {
		return false, nil
	}
	return s.included(node), nil
}

// Process implements traversal.Source.
func (s *Source) Process(ctx context.Context, node string) error {
	info, err := fs.Stat(s.fsys, node)
	if err != nil {
		return fmt.Errorf("stat %s: %w", node, err)
	}
	return s.config.Handler(ctx, File{
		Path:    node,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

func (s *Source) skipped(node string) bool {
	if node == Root {
		return false
	}
	if s.config.SkipHidden && strings.HasPrefix(path.Base(node), ".") {
		return true
	}
	return matchAny(s.config.Exclude, node)
}

func (s *Source) included(node string) bool {
	if len(s.config.Include) == 0 {
		return true
	}
	return matchAny(s.config.Include, node)
}

// matchAny reports whether node or its base name matches one of patterns.
func matchAny(patterns []string, node string) bool {
	base := path.Base(node)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, node); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
