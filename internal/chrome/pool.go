// Package chrome manages a pool of headless Chrome tabs for PDF rendering.
package chrome

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"paystubs/internal/utils"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("chrome pool closed")

// Tab is a leased browser tab. Ctx is valid until the tab is released.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
	gen    int
}

// Pool keeps a fixed number of tabs inside a single shared browser
// process. Tabs are recycled between requests; a tab that errored in a
// session-fatal way is replaced on release.
type Pool struct {
	mu sync.Mutex

	cfg        utils.Config
	size       int
	profileDir string
	ownProfile bool

	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc

	sem    chan *Tab
	inUse  int
	closed bool
	gen    int

	restarts    int
	lastRestart time.Time
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	ProfileDir   string
	Restarts     int
	LastRestart  string
}

// NewPool creates a pool with cfg.PDF.ChromePoolSize tabs. The browser
// itself starts lazily on the first render.
func NewPool(cfg utils.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, errors.New("chrome pool size must be positive")
	}

	p := &Pool{
		cfg:  cfg,
		size: size,
	}

	if cfg.PDF.UserDataDir != "" {
		if err := os.MkdirAll(cfg.PDF.UserDataDir, 0o755); err != nil {
			return nil, err
		}
		p.profileDir = cfg.PDF.UserDataDir
	} else {
		dir, err := os.MkdirTemp("", "chromepool-*")
		if err != nil {
			return nil, err
		}
		p.profileDir = dir
		p.ownProfile = true
	}

	p.start()
	return p, nil
}

// start builds the allocator, browser context and idle tabs. Caller must
// hold no lease on the previous generation.
func (p *Pool) start() {
	opts := AllocatorOptions(p.cfg, p.profileDir)
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	p.browserCtx, p.browserClose = chromedp.NewContext(p.allocCtx)

	p.gen++
	p.sem = make(chan *Tab, p.size)
	p.sem <- &Tab{Ctx: p.browserCtx, cancel: func() {}, gen: p.gen}
	for i := 1; i < p.size; i++ {
		p.sem <- p.newTab()
	}
}

// AllocatorOptions builds the exec allocator flags used for every browser
// this service starts. Software rendering keeps Chrome happy in minimal
// container images without a GPU.
func AllocatorOptions(cfg utils.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

func (p *Pool) newTab() *Tab {
	ctx, cancel := chromedp.NewContext(p.browserCtx)
	return &Tab{Ctx: ctx, cancel: cancel, gen: p.gen}
}

// Acquire leases an idle tab, blocking until one frees up or ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	sem := p.sem
	p.mu.Unlock()

	if sem == nil {
		return nil, ErrPoolClosed
	}

	select {
	case tab := <-sem:
		p.mu.Lock()
		p.inUse++
		p.mu.Unlock()
		return tab, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a tab to the pool. When the render error indicates a
// dead session the tab is replaced with a fresh one.
func (p *Pool) Release(tab *Tab, renderErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tab.gen == p.gen && p.inUse > 0 {
		p.inUse--
	}
	if p.closed || tab.gen != p.gen {
		// Stale lease from before a restart; its context is gone.
		tab.cancel()
		return
	}

	if renderErr != nil && IsSessionInterrupted(renderErr) {
		tab.cancel()
		tab = p.newTab()
	}

	select {
	case p.sem <- tab:
	default:
		tab.cancel()
	}
}

// Restart tears down the browser and rebuilds the pool. In-flight tabs
// are abandoned; their contexts are cancelled with the allocator.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.teardownLocked()
	p.start()
	p.inUse = 0
	p.restarts++
	p.lastRestart = time.Now()
	return nil
}

// Close shuts the pool down for good.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.teardownLocked()
	if p.ownProfile && p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

func (p *Pool) teardownLocked() {
	if p.sem != nil {
	drain:
		for {
			select {
			case tab := <-p.sem:
				tab.cancel()
			default:
				break drain
			}
		}
		p.sem = nil
	}
	if p.browserClose != nil {
		p.browserClose()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
}

// Stats reports the current pool state for the observability endpoint.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Enabled:      !p.closed && p.sem != nil,
		Capacity:     p.size,
		InUse:        p.inUse,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		Restarts:     p.restarts,
	}
	if p.sem != nil {
		s.Idle = len(p.sem)
	}
	if !p.lastRestart.IsZero() {
		s.LastRestart = p.lastRestart.Format(time.RFC3339)
	}
	return s
}

// IsSessionInterrupted reports whether the error means the Chrome session
// is gone and the tab cannot be reused.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{
		"session closed",
		"target closed",
		"browser closed",
		"websocket: close",
		"connection reset by peer",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
