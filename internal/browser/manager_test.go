package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/snabbsalud/agendabot/internal/config"
)

func testBrowserConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Browser.Headless = true
	cfg.Browser.DisableGPU = true
	cfg.Browser.NavigationTimeout = 30 * time.Second
	return cfg
}

func TestNewPageAfterShutdownIsRejected(t *testing.T) {
	m := NewManager(context.Background(), testBrowserConfig(), zaptest.NewLogger(t))

	shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(shutCtx)

	_, err := m.NewPage(context.Background())
	assert.ErrorIs(t, err, ErrManagerClosed)

	// Shutdown is idempotent.
	m.Shutdown(shutCtx)
}

const portalFixture = `<!DOCTYPE html>
<html><body>
  <div class="MuiBox-root">
    <button class="date-block">MIÉ 10 SEP 12 horas disponibles</button>
    <button class="slot" onclick="window.__taken = this.textContent">Reservar 09:15</button>
    <button class="slot">Reservar 10:00</button>
    <button style="display:none">Reservar 23:00</button>
  </div>
</body></html>`

// TestPageAgainstLocalPortal exercises the real CDP path: navigation, locator
// evaluation, the activation ladder and screenshot capture against a served
// fixture page. Needs a local Chrome; skipped in -short runs and when no
// browser can be launched.
func TestPageAgainstLocalPortal(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires a local Chrome")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(portalFixture))
	}))
	defer srv.Close()

	m := NewManager(context.Background(), testBrowserConfig(), zaptest.NewLogger(t))
	t.Cleanup(func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.Shutdown(shutCtx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := m.NewPage(ctx)
	if err != nil {
		t.Skipf("could not launch Chrome: %v", err)
	}
	defer page.Close()

	require.NoError(t, page.Navigate(ctx, srv.URL))

	// Accent-insensitive text fallback finds the date block.
	var found Result
	require.NoError(t, page.Evaluate(ctx, FindJS(Query{Text: "MIE 10 SEP 12 horas disponibles"}), &found))
	assert.True(t, found.Found, "candidates seen: %v", found.Candidates)

	// Hidden elements never match.
	var hidden Result
	require.NoError(t, page.Evaluate(ctx, FindJS(Query{Text: "Reservar 23:00"}), &hidden))
	assert.False(t, hidden.Found)

	// The activation ladder lands a real click the page observes.
	var clicked Result
	require.NoError(t, page.Evaluate(ctx, ClickJS(Query{Selectors: []string{".slot"}, Text: "Reservar 09:15"}), &clicked))
	require.True(t, clicked.Clicked, "method=%s label=%s", clicked.Method, clicked.Label)

	var taken string
	require.NoError(t, page.Evaluate(ctx, `window.__taken || ""`, &taken))
	assert.Equal(t, "Reservar 09:15", taken)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	require.NoError(t, page.Close())
	require.NoError(t, page.Close(), "close is idempotent")
}
