package site

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafeOutput is returned when cleaning the output directory would
// destroy something other than build output.
var ErrUnsafeOutput = errors.New("unsafe output directory")

// ensureDir creates a directory and any missing parents
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// clean removes the output directory entirely and recreates it empty
func clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return ensureDir(dir)
}

// writeFile writes data to path, creating parent directories
func writeFile(path string, data []byte) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// copyFile copies a single file, following symlinks
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

// ErrSymlinkCycle is returned when a symlinked directory points back at a
// directory that is already being copied.
var ErrSymlinkCycle = errors.New("symlink cycle")

// copyDir recursively copies src into dst and returns the number of files
// copied. Symlinked directories are copied as directories.
func copyDir(src, dst string) (int, error) {
	return copyTree(src, dst, make(map[string]struct{}))
}

// copyTree copies the directory src resolves to. active holds the resolved
// directories currently being copied, so a link to one of them is a cycle.
func copyTree(src, dst string, active map[string]struct{}) (int, error) {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	if _, ok := active[resolved]; ok {
		return 0, fmt.Errorf("%w: %s points at %s", ErrSymlinkCycle, src, resolved)
	}
	active[resolved] = struct{}{}
	defer delete(active, resolved)

	copied := 0
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return ensureDir(target)
		}

		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", path, err)
			}
			if info.IsDir() {
				n, err := copyTree(path, target, active)
				copied += n
				return err
			}
		}

		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

// fileExists reports whether path exists and is not a directory
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// within reports whether path is parent itself or lies below it. Both paths
// must be absolute and clean.
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
