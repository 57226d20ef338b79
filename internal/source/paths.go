// Package source loads raw documents from disk or GitHub and watches them for changes.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bull/docchat/internal/extract"
)

var (
	ErrNoMatch     = errors.New("pattern matched no files")
	ErrOutsideRoot = errors.New("path is outside the documents root")
	ErrNotRegular  = errors.New("not a regular file")
	ErrTooLarge    = errors.New("file exceeds the size limit")
	ErrUnsupported = errors.New("unsupported file type")
)

// DefaultMaxFileBytes caps a single local document.
const DefaultMaxFileBytes int64 = 64 << 20

// SupportsFunc reports whether a file name can be extracted. nil accepts everything.
type SupportsFunc func(name string) bool

// Loader reads files, directories (not recursive) and glob patterns from disk.
type Loader struct {
	// Root confines every file, after symlinks are resolved. Relative
	// paths are taken from Root. Empty means no confinement.
	Root string

	// Supports filters directory and glob entries.
	Supports SupportsFunc

	// Strict applies Supports to files named explicitly as well.
	Strict bool

	// MaxBytes caps each file. Zero means DefaultMaxFileBytes.
	MaxBytes int64
}

// LoadPaths reads files, directories (not recursive) and glob patterns.
// Files named explicitly are always read; directory and glob entries are
// filtered by supports. Each file is read once, in the order first seen.
func LoadPaths(paths []string, supports SupportsFunc) ([]extract.Source, error) {
	return Loader{Supports: supports}.Load(paths)
}

// Load resolves paths to files and reads them.
func (l Loader) Load(paths []string) ([]extract.Source, error) {
	var root string
	if l.Root != "" {
		r, err := resolve(l.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", l.Root, err)
		}
		root = r
	}

	var files []string
	seen := map[string]bool{}
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil && !seen[abs] {
			seen[abs] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		if root != "" && !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}

		if strings.ContainsAny(p, "*?[") {
			matches, err := filepath.Glob(p)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", p, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrNoMatch, p)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if ok, _ := isFile(m); ok && accepts(l.Supports, m) {
					add(m)
				}
			}
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := confine(root, p); err != nil {
				return nil, err
			}
			if l.Strict && !accepts(l.Supports, p) {
				return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
			}
			add(p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && accepts(l.Supports, e.Name()) {
				add(filepath.Join(p, e.Name()))
			}
		}
	}

	sources := make([]extract.Source, 0, len(files))
	for _, f := range files {
		data, err := l.read(root, f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, extract.Source{Name: f, Data: data})
	}
	return sources, nil
}

// read opens the resolved file so a symlink cannot point the read elsewhere
// after the root check.
func (l Loader) read(root, name string) ([]byte, error) {
	target, err := resolve(name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	if root != "" && !within(root, target) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}

	// Stat before open: opening a FIFO blocks.
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, name)
	}

	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxFileBytes
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, name, info.Size(), limit)
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer f.Close()

	// The file may grow between Stat and read.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	return data, nil
}

// confine fails unless name resolves to a location under root.
func confine(root, name string) error {
	if root == "" {
		return nil
	}
	target, err := resolve(name)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", name, err)
	}
	if !within(root, target) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return nil
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// within reports whether target is root or below it. Both must be resolved.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func accepts(supports SupportsFunc, name string) bool {
	return supports == nil || supports(name)
}

func isFile(p string) (bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
