package resources

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

// Sandbox confines file reads to one base directory
type Sandbox struct {
	base   string
	logger *logging.Logger
}

// NewSandbox creates base if needed and pins it to its absolute, symlink-free form
func NewSandbox(base string) (*Sandbox, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, customErrors.WrapResourceError(err, customErrors.KindInvalidArguments, "failed to create resource directory")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, customErrors.WrapResourceError(err, customErrors.KindInvalidArguments, "invalid resource directory")
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, customErrors.WrapResourceError(err, customErrors.KindInvalidArguments, "invalid resource directory")
	}
	return &Sandbox{base: resolved, logger: logging.Discard()}, nil
}

// WithLogger sets where filesystem causes are logged; they never reach the caller
func (s *Sandbox) WithLogger(logger *logging.Logger) *Sandbox {
	if logger != nil {
		s.logger = logger.WithName("sandbox")
	}
	return s
}

// Base returns the resolved base directory
func (s *Sandbox) Base() string {
	return s.base
}

func accessDenied() error {
	return customErrors.NewResourceError(customErrors.KindAccessDenied, "Access denied outside base directory.")
}

// Resolve maps a relative name to a path inside the base directory.
// Nothing is opened; a name escaping base lexically or through a symlink is AccessDenied.
func (s *Sandbox) Resolve(name string) (string, error) {
	if strings.ContainsRune(name, 0) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" ||
		strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", accessDenied()
	}

	joined := filepath.Join(s.base, name)
	if !within(s.base, joined) {
		return "", accessDenied()
	}

	resolved, err := resolveExisting(joined)
	if err != nil {
		s.logger.DebugKV("Path resolution failed", "name", name, "error", err)
		return "", customErrors.NewResourceErrorf(customErrors.KindNotFound, "Not found: %s", filepath.Base(joined))
	}
	if !within(s.base, resolved) {
		return "", accessDenied()
	}
	return resolved, nil
}

// ReadText reads a regular file under base as UTF-8 text
func (s *Sandbox) ReadText(name string) (string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", customErrors.NewResourceErrorf(customErrors.KindNotFound, "Not found: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", customErrors.NewResourceErrorf(customErrors.KindNotFound, "Not found: %s", filepath.Base(path))
		}
		s.logger.WarnKV("Read failed", "name", name, "error", err)
		return "", customErrors.NewResourceErrorf(customErrors.KindUpstream, "Failed to read %s", filepath.Base(path))
	}
	if !utf8.Valid(data) {
		return "", customErrors.NewResourceErrorf(customErrors.KindUpstream, "%s is not valid UTF-8 text", filepath.Base(path))
	}
	return string(data), nil
}

// FileHandler serves files from the sandbox, naming the file by the param placeholder
func FileHandler(s *Sandbox, param string) Handler {
	return func(_ context.Context, uri string, params map[string]string) (*Content, error) {
		text, err := s.ReadText(params[param])
		if err != nil {
			return nil, err
		}
		return &Content{URI: uri, MIMEType: defaultMIMEType, Text: text}, nil
	}
}

// resolveExisting evaluates symlinks along the longest existing prefix of path
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
