package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager enforces the filesystem allow-list for CHI report access. It stores
// canonical absolute roots and checks that report inputs and export outputs
// stay within them.
type Manager struct {
	allowedDirs []string
	allowedExts map[string]struct{}
	exportExts  map[string]struct{}
}

// ErrNotAllowed indicates the requested path is outside the allow-list roots.
var ErrNotAllowed = errors.New("security: path not allowed")

// ErrUnsupportedExtension indicates the requested file extension is not supported.
var ErrUnsupportedExtension = errors.New("security: unsupported file extension")

// ErrNotFound indicates the requested file does not exist or is not accessible.
var ErrNotFound = errors.New("security: file not found")

// ReportExtensions are the workbook formats the analyzer reads.
var ReportExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm"}

// ExportExtensions are the formats export_report may write.
var ExportExtensions = []string{".xlsx", ".md"}

// NewManager constructs a security manager given an allow-list of directories
// and the readable report extensions (case-insensitive, with leading dot).
// Directories are canonicalized (absolute + EvalSymlinks) and validated.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = ReportExtensions
	}
	exts, err := extensionSet(allowedExtensions)
	if err != nil {
		return nil, err
	}
	exportExts, _ := extensionSet(ExportExtensions)

	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		real, err := canonicalDir(d)
		if err != nil {
			return nil, err
		}
		canonical = append(canonical, real)
	}

	return &Manager{allowedDirs: canonical, allowedExts: exts, exportExts: exportExts}, nil
}

func extensionSet(list []string) (map[string]struct{}, error) {
	exts := make(map[string]struct{}, len(list))
	for _, e := range list {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}
	return exts, nil
}

func canonicalDir(d string) (string, error) {
	real, err := resolve(d)
	if err != nil {
		return "", fmt.Errorf("security: allowed dir %q: %w", d, err)
	}
	if info, err := os.Stat(real); err != nil || !info.IsDir() {
		return "", fmt.Errorf("security: allowed dir %q is not a directory", d)
	}
	return filepath.Clean(real), nil
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// ValidateConfig returns an error when no allow-list entries are configured,
// so the MCP server refuses to start without explicit directories.
func (m *Manager) ValidateConfig() error {
	if len(m.allowedDirs) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// ValidateOpenPath checks that input names an existing monthly report inside
// the allow-list and returns its canonical path.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if err := checkExt(m.allowedExts, input); err != nil {
		return "", err
	}
	real, err := resolve(input)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(real)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("security: stat: %w", err)
	case info.IsDir() || !m.contains(real):
		return "", ErrNotAllowed
	}
	return real, nil
}

// ValidateOutputPath checks an export destination. The report may not exist
// yet but its directory must, inside a root. A symlink already sitting at the
// destination is refused.
func (m *Manager) ValidateOutputPath(output string) (string, error) {
	if err := checkExt(m.exportExts, output); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	dir, err := resolve(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.Base(abs))
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", ErrNotAllowed
	}
	if !m.contains(target) {
		return "", ErrNotAllowed
	}
	return target, nil
}

func checkExt(set map[string]struct{}, path string) error {
	if path == "" {
		return ErrNotAllowed
	}
	if _, ok := set[strings.ToLower(filepath.Ext(path))]; !ok {
		return ErrUnsupportedExtension
	}
	return nil
}

// resolve returns the absolute, symlink-free form of path.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}
	return real, nil
}

func (m *Manager) contains(real string) bool {
	for _, root := range m.allowedDirs {
		rel, err := filepath.Rel(root, real)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}
