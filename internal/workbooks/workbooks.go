package workbooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Handle is one parsed CHI report. ModTime and Size identify the file version
// it was parsed from. mu guards File; ExpiresAt is guarded by the Manager.
type Handle struct {
	ID        string
	Path      string
	File      *excelize.File
	ModTime   time.Time
	Size      int64
	LoadedAt  time.Time
	ExpiresAt time.Time
	mu        sync.RWMutex
}

// WorkbookGate bounds how many reports may be open at once.
type WorkbookGate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator returns the canonical path for an allowed report or an error.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Manager caches parsed reports by canonical path so the analyze, trend and
// export calls made against one monthly file parse it once. A cached report
// is reopened when the file on disk changes.
type Manager struct {
	mu        sync.Mutex
	handles   map[string]*Handle
	byPath    map[string]string
	ttl       time.Duration
	sweep     time.Duration
	clock     func() time.Time
	gate      WorkbookGate
	validator PathValidator

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var (
	// ErrHandleNotFound indicates an unknown or evicted handle ID.
	ErrHandleNotFound = errors.New("workbooks: handle not found")
	// ErrUnsupportedFormat indicates a file extension excelize cannot read.
	ErrUnsupportedFormat = errors.New("workbooks: unsupported format")
)

var readable = map[string]bool{".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true}

// NewManager builds a cache. Zero durations fall back to the config defaults;
// gate may be nil and clock defaults to time.Now.
func NewManager(ttl, sweep time.Duration, gate WorkbookGate, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultWorkbookIdleTTL
	}
	if sweep <= 0 {
		sweep = config.DefaultWorkbookCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		handles: make(map[string]*Handle),
		byPath:  make(map[string]string),
		ttl:     ttl,
		sweep:   sweep,
		clock:   clock,
		gate:    gate,
		stop:    make(chan struct{}),
	}
}

// SetValidator installs the allow-list check applied before any file is read.
func (m *Manager) SetValidator(v PathValidator) {
	m.mu.Lock()
	m.validator = v
	m.mu.Unlock()
}

// Start runs the idle sweeper until Close.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.sweep)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-t.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops the sweeper and closes every cached report. It is safe to call
// more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	done := make(chan struct{})
	go func() { m.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]*Handle)
	m.byPath = make(map[string]string)
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, m.closeFile(h))
	}
	return errors.Join(errs...)
}

// OpenByPath returns the cached handle for path, parsing the report when it
// is not cached yet or has changed since it was parsed. The canonical path is
// returned alongside the handle ID.
func (m *Manager) OpenByPath(ctx context.Context, path string) (string, string, error) {
	canonical, err := m.canonical(path)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", "", fmt.Errorf("workbooks: %s: %w", filepath.Base(canonical), err)
	}

	m.mu.Lock()
	if id, ok := m.byPath[canonical]; ok {
		h := m.handles[id]
		if h.Size == info.Size() && h.ModTime.Equal(info.ModTime()) {
			h.ExpiresAt = m.clock().Add(m.ttl)
			m.mu.Unlock()
			return id, canonical, nil
		}
		// The report was replaced on disk; drop the stale parse.
		delete(m.handles, id)
		delete(m.byPath, canonical)
		m.mu.Unlock()
		_ = m.closeFile(h)
	} else {
		m.mu.Unlock()
	}

	h, err := m.open(ctx, canonical, info)
	if err != nil {
		return "", "", err
	}
	m.mu.Lock()
	if id, ok := m.byPath[canonical]; ok {
		// Another caller parsed the same report first.
		m.mu.Unlock()
		_ = m.closeFile(h)
		return id, canonical, nil
	}
	m.handles[h.ID] = h
	m.byPath[canonical] = h.ID
	m.mu.Unlock()
	return h.ID, canonical, nil
}

func (m *Manager) open(ctx context.Context, canonical string, info os.FileInfo) (*Handle, error) {
	if m.gate != nil {
		if err := m.gate.AcquireWorkbook(ctx); err != nil {
			return nil, err
		}
	}
	f, err := excelize.OpenFile(canonical)
	if err != nil {
		m.release()
		return nil, fmt.Errorf("workbooks: open %s: %w", filepath.Base(canonical), err)
	}
	now := m.clock()
	return &Handle{
		ID:        uuid.NewString(),
		Path:      canonical,
		File:      f,
		ModTime:   info.ModTime(),
		Size:      info.Size(),
		LoadedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}, nil
}

func (m *Manager) canonical(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !readable[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	m.mu.Lock()
	v := m.validator
	m.mu.Unlock()
	if v != nil {
		return v.ValidateOpenPath(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("workbooks: resolve %q: %w", path, err)
	}
	return abs, nil
}

// Get returns a cached handle and extends its idle deadline.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if ok {
		h.ExpiresAt = m.clock().Add(m.ttl)
	}
	return h, ok
}

// WithRead runs fn while holding the handle's shared lock. Concurrent readers
// of one report do not block each other.
func (m *Manager) WithRead(id string, fn func(*excelize.File) error) error {
	h, ok := m.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.File)
}

// CloseHandle drops one report from the cache.
func (m *Manager) CloseHandle(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
		if m.byPath[h.Path] == id {
			delete(m.byPath, h.Path)
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	return m.closeFile(h)
}

// EvictExpired closes reports idle past their deadline.
func (m *Manager) EvictExpired() {
	now := m.clock()
	m.mu.Lock()
	var expired []string
	for id, h := range m.handles {
		if now.After(h.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()
	for _, id := range expired {
		_ = m.CloseHandle(context.Background(), id)
	}
}

// Count returns the number of cached reports.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// closeFile waits for readers to finish, then closes the file and frees its
// gate slot.
func (m *Manager) closeFile(h *Handle) error {
	h.mu.Lock()
	err := h.File.Close()
	h.mu.Unlock()
	m.release()
	return err
}

func (m *Manager) release() {
	if m.gate != nil {
		m.gate.ReleaseWorkbook()
	}
}
