// Package workspace provides file operations rooted inside a single app
// workspace directory. Every path is workspace-relative; resolutions that
// escape the root are rejected before any I/O happens.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the requested file or directory does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrForbiddenPath indicates the path resolves outside the workspace root.
	ErrForbiddenPath = errors.New("path escapes workspace root")
	// ErrInvalidPath indicates the path is syntactically unusable.
	ErrInvalidPath = errors.New("invalid path")
)

// Directories pruned from recursive listings. These are build artifacts and
// dependency trees that would dominate the output.
var prunedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	".next":        true,
}

// FileInfo describes one entry in a workspace listing.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store performs file operations confined to one workspace root.
type Store struct {
	root string
}

// NewStore returns a store rooted at root. The directory is created if it
// does not exist yet.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute workspace root directory.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a workspace-relative path onto the filesystem and enforces
// the containment contract: the result is always the root or a descendant
// of it, with symlinks on the existing prefix resolved so a link inside the
// workspace cannot redirect an operation outside it.
func (s *Store) resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(rel) {
		return "", ErrForbiddenPath
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == "" {
		return s.root, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrForbiddenPath
	}

	abs := filepath.Join(s.root, clean)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrForbiddenPath
	}
	if err := s.checkSymlinks(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// checkSymlinks resolves the deepest existing ancestor of abs and verifies
// it still lives under the root. Non-existing suffixes are fine; they are
// created under a verified ancestor.
func (s *Store) checkSymlinks(abs string) error {
	existing := abs
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", existing, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", existing, err)
	}
	rootResolved, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
		return ErrForbiddenPath
	}
	return nil
}

// Read returns the contents of a workspace file.
func (s *Store) Read(path string) ([]byte, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Write stores data at path, creating missing parent directories.
// Concurrent writes to the same path are last-writer-wins.
func (s *Store) Write(path string, data []byte) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if abs == s.root {
		return ErrInvalidPath
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Delete removes a file or directory tree at path.
func (s *Store) Delete(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if abs == s.root {
		return ErrInvalidPath
	}
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// List returns the immediate entries of a workspace directory, directories
// first, each group sorted by name.
func (s *Store) List(dir string) ([]FileInfo, error) {
	abs, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    entry.Name(),
			Path:    joinRel(dir, entry.Name()),
			IsDir:   entry.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sortListing(infos)
	return infos, nil
}

// ListRecursive walks dir up to maxDepth levels deep (maxDepth <= 0 means
// unlimited), skipping pruned directories such as node_modules and .git.
func (s *Store) ListRecursive(dir string, maxDepth int) ([]FileInfo, error) {
	abs, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	var infos []FileInfo
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == abs {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1
		if d.IsDir() {
			if prunedDirs[d.Name()] {
				return filepath.SkipDir
			}
			if maxDepth > 0 && depth >= maxDepth {
				// Record the directory itself but do not descend.
				if fi, err := d.Info(); err == nil {
					infos = append(infos, FileInfo{
						Name:    d.Name(),
						Path:    joinRel(dir, rel),
						IsDir:   true,
						Size:    fi.Size(),
						ModTime: fi.ModTime(),
					})
				}
				return filepath.SkipDir
			}
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		infos = append(infos, FileInfo{
			Name:    d.Name(),
			Path:    joinRel(dir, rel),
			IsDir:   d.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sortListing(infos)
	return infos, nil
}

// Exists reports whether path refers to an existing file or directory.
func (s *Store) Exists(path string) (bool, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// Stat returns metadata for a single workspace entry.
func (s *Store) Stat(path string) (FileInfo, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, ErrNotFound
		}
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return FileInfo{
		Name:    fi.Name(),
		Path:    filepath.ToSlash(filepath.Clean(path)),
		IsDir:   fi.IsDir(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

// EnsureDir creates a directory (and parents) at path if absent.
func (s *Store) EnsureDir(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Copy duplicates a single file from src to dst inside the workspace,
// creating dst's parent directories.
func (s *Store) Copy(src, dst string) error {
	absSrc, err := s.resolve(src)
	if err != nil {
		return err
	}
	absDst, err := s.resolve(dst)
	if err != nil {
		return err
	}
	if absDst == s.root {
		return ErrInvalidPath
	}

	in, err := os.Open(absSrc)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: cannot copy a directory", ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", dst, err)
	}
	out, err := os.Create(absDst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// Rename moves a file or directory from src to dst inside the workspace.
func (s *Store) Rename(src, dst string) error {
	absSrc, err := s.resolve(src)
	if err != nil {
		return err
	}
	absDst, err := s.resolve(dst)
	if err != nil {
		return err
	}
	if absSrc == s.root || absDst == s.root {
		return ErrInvalidPath
	}
	if _, err := os.Lstat(absSrc); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", dst, err)
	}
	if err := os.Rename(absSrc, absDst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}

// joinRel joins a listing base directory with an entry path, keeping the
// result workspace-relative with forward slashes.
func joinRel(base, name string) string {
	base = filepath.ToSlash(filepath.Clean(filepath.FromSlash(base)))
	if base == "." || base == "" {
		return filepath.ToSlash(name)
	}
	return base + "/" + filepath.ToSlash(name)
}

// sortListing orders entries directories-first, then by path.
func sortListing(infos []FileInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].IsDir != infos[j].IsDir {
			return infos[i].IsDir
		}
		return infos[i].Path < infos[j].Path
	})
}
