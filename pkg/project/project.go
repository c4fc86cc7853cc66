// Package project provides read-only access to a function-app project tree.
//
// A Project wraps a go-billy filesystem rooted at the project directory so
// that checks can be exercised against an in-memory tree in tests and the
// real disk in production. Nothing in this package writes.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const (
	// DefaultMaxFileSize is the largest file read into memory (10 MiB).
	DefaultMaxFileSize int64 = 10 << 20

	// SourceExt is the extension of source files scanned by text checks.
	SourceExt = ".py"

	// HostConfig is the project-level host configuration file.
	HostConfig = "host.json"

	// FunctionConfig is the per-function trigger configuration file.
	FunctionConfig = "function.json"
)

var (
	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEncoding is returned when a text file is not valid UTF-8.
	ErrEncoding = errors.New("invalid text encoding")
)

// skipDirs are never descended into during walks.
var skipDirs = map[string]bool{
	".git":             true,
	".venv":            true,
	"venv":             true,
	"__pycache__":      true,
	"node_modules":     true,
	".python_packages": true,
}

// Project is a read-only view of a project directory.
type Project struct {
	root        string
	fs          billy.Filesystem
	maxFileSize int64
}

// Option is a functional option for configuring a Project.
type Option func(*Project) error

// WithMaxFileSize sets the largest file, in bytes, that will be read.
func WithMaxFileSize(n int64) Option {
	return func(p *Project) error {
		if n <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", n)
		}
		p.maxFileSize = n
		return nil
	}
}

// Open returns a Project backed by the OS filesystem at path. The path is
// made absolute but not required to exist; checks report what is missing.
func Open(path string, opts ...Option) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %q: %w", path, err)
	}
	return New(abs, osfs.New(abs), opts...)
}

// New returns a Project reporting root as its location and reading from fsys.
func New(root string, fsys billy.Filesystem, opts ...Option) (*Project, error) {
	if fsys == nil {
		return nil, fmt.Errorf("project: filesystem must not be nil")
	}
	p := &Project{
		root:        root,
		fs:          fsys,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
	}
	return p, nil
}

// Root returns the absolute project directory.
func (p *Project) Root() string {
	return p.root
}

// Abs returns rel joined under the project root.
func (p *Project) Abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// Stat returns file info for a project-relative path.
func (p *Project) Stat(rel string) (os.FileInfo, error) {
	return p.fs.Stat(rel)
}

// Exists reports whether rel exists. A path through a non-directory counts
// as missing rather than as an error.
func (p *Project) Exists(rel string) (bool, error) {
	_, err := p.fs.Stat(rel)
	switch {
	case err == nil:
		return true, nil
	case isNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("project: stat %q: %w", rel, err)
	}
}

// IsFile reports whether rel exists and is a regular file.
func (p *Project) IsFile(rel string) (bool, error) {
	info, err := p.fs.Stat(rel)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case isNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("project: stat %q: %w", rel, err)
	}
}

// ReadFile reads rel, refusing files larger than the size limit.
func (p *Project) ReadFile(rel string) ([]byte, error) {
	info, err := p.fs.Stat(rel)
	if err != nil {
		return nil, fmt.Errorf("project: stat %q: %w", rel, err)
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("project: %q is %d bytes: %w", rel, info.Size(), ErrFileTooLarge)
	}
	data, err := util.ReadFile(p.fs, rel)
	if err != nil {
		return nil, fmt.Errorf("project: read %q: %w", rel, err)
	}
	return data, nil
}

// ReadText reads rel and requires it to be valid UTF-8.
func (p *Project) ReadText(rel string) (string, error) {
	data, err := p.ReadFile(rel)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("project: %q: %w", rel, ErrEncoding)
	}
	return string(data), nil
}

// WalkFunc is called for every file and directory below the root with a
// slash-separated project-relative path.
type WalkFunc func(rel string, info os.FileInfo) error

// Walk visits the tree in lexical order, skipping VCS, virtualenv and cache
// directories. Unreadable directories are skipped. Walk stops with the
// context's error once ctx is done.
func (p *Project) Walk(ctx context.Context, fn WalkFunc) error {
	err := util.Walk(p.fs, ".", func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == "." {
			return nil
		}
		if info.IsDir() && skipDirs[info.Name()] {
			return filepath.SkipDir
		}
		return fn(filepath.ToSlash(path), info)
	})
	if err != nil && isNotExist(err) {
		// A missing root is an empty project.
		return nil
	}
	return err
}

// SourceFiles returns every source file in the project.
func (p *Project) SourceFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := p.Walk(ctx, func(rel string, info os.FileInfo) error {
		if info.Mode().IsRegular() && strings.HasSuffix(rel, SourceExt) {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// FindFiles returns every regular file whose base name is name.
func (p *Project) FindFiles(ctx context.Context, name string) ([]string, error) {
	var files []string
	err := p.Walk(ctx, func(rel string, info os.FileInfo) error {
		if info.Mode().IsRegular() && info.Name() == name {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// Glob matches patterns against every file and directory in the tree. A
// pattern without a slash matches base names at any depth; a pattern with a
// slash matches the relative path, with a leading "**/" matching any depth.
// Matches are returned sorted and deduplicated.
func (p *Project) Glob(ctx context.Context, patterns []string) ([]string, error) {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("project: bad pattern %q: %w", pattern, err)
		}
	}

	seen := make(map[string]bool)
	err := p.Walk(ctx, func(rel string, info os.FileInfo) error {
		for _, pattern := range patterns {
			if matchPattern(pattern, rel, info.Name()) {
				seen[rel] = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	matches := make([]string, 0, len(seen))
	for rel := range seen {
		matches = append(matches, rel)
	}
	sort.Strings(matches)
	return matches, nil
}

func matchPattern(pattern, rel, name string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	if trimmed, ok := strings.CutPrefix(pattern, "**/"); ok {
		pattern = trimmed
		if !strings.Contains(pattern, "/") {
			ok, _ := filepath.Match(pattern, name)
			return ok
		}
		parts := strings.Split(rel, "/")
		for i := range parts {
			if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
		return false
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := filepath.Match(pattern, name)
		return ok
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
