package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/internal/config"
)

var timeNow = time.Now

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome process and hands out one Tab per page. The
// allocator is started lazily on the first tab request.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	cancelAlloc context.CancelFunc

	tabs map[string]*Tab
	mu   sync.RWMutex
	wg   sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// Tab couples a driver with its chromedp context lifecycle.
type Tab struct {
	ID     string
	Driver *Driver

	cancel  context.CancelFunc
	onClose func()
	once    sync.Once
}

// Close tears the tab down. Safe to call more than once.
func (t *Tab) Close() {
	t.once.Do(func() {
		t.cancel()
		if t.onClose != nil {
			t.onClose()
		}
	})
}

// NewManager creates a browser manager. Chrome launch is deferred until the
// first NewTab call.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("BrowserManager"),
		tabs:   make(map[string]*Tab),
	}
}

func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Headless),
			chromedp.WindowSize(1920, 1080),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		m.allocCtx, m.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized", zap.Bool("headless", m.cfg.Headless))
	})
	return m.initErr
}

// NewTab opens a tab, navigates it to url, waits out the post-load settle
// window and returns a ready driver.
func (m *Manager) NewTab(ctx context.Context, url string) (*Tab, error) {
	if err := m.initialize(); err != nil {
		return nil, err
	}

	var tabOpts []chromedp.ContextOption
	if m.cfg.Debug {
		tabOpts = append(tabOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	tabCtx, cancel := chromedp.NewContext(m.allocCtx, tabOpts...)

	navCtx, navCancel := context.WithTimeout(tabCtx, m.cfg.NavigationTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(m.cfg.PostLoadWait),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}

	driver, err := newDriver(tabCtx, m.logger)
	if err != nil {
		cancel()
		return nil, err
	}

	tab := &Tab{
		ID:     uuid.NewString(),
		Driver: driver,
		cancel: cancel,
	}

	m.wg.Add(1)
	tab.onClose = func() {
		m.mu.Lock()
		delete(m.tabs, tab.ID)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Tab closed", zap.String("tab_id", tab.ID))
	}

	m.mu.Lock()
	m.tabs[tab.ID] = tab
	m.mu.Unlock()

	m.logger.Info("Tab opened", zap.String("tab_id", tab.ID), zap.String("url", url))
	return tab, nil
}

// Shutdown closes all tabs and the Chrome process.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cancelAlloc == nil {
		return nil
	}
	m.logger.Info("Shutting down browser manager")

	m.mu.RLock()
	open := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		open = append(open, t)
	}
	m.mu.RUnlock()

	for _, t := range open {
		go t.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for tabs to close", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period expired waiting for tabs to close")
	}

	m.cancelAlloc()
	m.logger.Info("Browser manager shutdown complete")
	return nil
}
