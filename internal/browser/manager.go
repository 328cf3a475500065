// File: internal/browser/manager.go

// Package browser owns the headless Chrome lifecycle and the page-level primitives
// the booking stages are built on: navigation, script evaluation, keyboard input and
// screenshots over the Chrome DevTools Protocol.
package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/config"
)

// Manager holds the shared exec allocator. Every booking attempt gets its own tab
// (chromedp context) so concurrent attempts never share mutable browser state.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         *config.Config

	mu   sync.Mutex
	wg   sync.WaitGroup
	shut bool
}

// execOptions translates the application config into chromedp allocator options.
func execOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems and inside containers.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.Browser.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}

	for _, arg := range cfg.Browser.Args {
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
	}
	return opts
}

// NewManager creates the allocator context the browser processes are spawned from.
// The first page request launches Chrome; the allocator reuses it afterwards.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Manager {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOptions(cfg)...)
	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
		cfg:         cfg,
	}
}

// NewPage opens a fresh tab. The caller owns it and must Close it on every exit path.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	p := &Page{
		ctx:    tabCtx,
		cancel: tabCancel,
		logger: m.logger,
		cfg:    m.cfg,
		onClose: func() {
			m.wg.Done()
		},
	}

	// Force target creation now so a broken Chrome install surfaces here, not mid-stage.
	if err := chromedp.Run(tabCtx); err != nil {
		p.Close()
		return nil, err
	}
	m.logger.Debug("Opened new browser page.")
	return p, nil
}

// Shutdown waits for outstanding pages and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		return
	}
	m.shut = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for pages to close; forcing browser shutdown.", zap.Error(ctx.Err()))
	}

	m.allocCancel()
	m.logger.Info("Browser manager shut down.")
}
