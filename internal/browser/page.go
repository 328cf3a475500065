// File: internal/browser/page.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/config"
)

// ErrManagerClosed is returned when a page is requested after shutdown began.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Page is one Chrome tab. It lives for exactly one booking attempt.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	cfg     *config.Config
	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// run executes chromedp actions honoring both the tab lifetime and the caller's context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the DOM to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))

	navTimeout := p.cfg.Browser.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page and optionally unmarshals the
// result into res.
func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

// SendKeys types text into the element matched by the structural selector using real
// key events. Reactive frameworks see these as genuine user input.
func (p *Page) SendKeys(ctx context.Context, selector, text string) error {
	typeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.run(typeCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("type action failed for selector %q: %w", selector, err)
	}
	return nil
}

// Screenshot captures the full page as a base64-encoded PNG. Best effort: attached to
// results for human verification, never machine-parsed.
func (p *Page) Screenshot(ctx context.Context) (string, error) {
	shotCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var buf []byte
	err := p.run(shotCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithCaptureBeyondViewport(true).
			Do(c)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Sleep is a settle delay: a fixed wait for asynchronous UI re-render where no
// observable postcondition exists. Respects context cancellation.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	return p.run(ctx, chromedp.Sleep(d))
}

// Close tears the tab down. Idempotent; safe on every exit path.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return nil
	}
	p.isClosed = true
	p.mu.Unlock()

	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
	p.logger.Debug("Browser page closed.")
	return nil
}

// combineContext derives a context canceled when either parent is done.
func combineContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
