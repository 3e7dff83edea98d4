// Package browser binds the tour engine to a real page through the Chrome
// DevTools Protocol. A Session is the resolver's Page, the engine's Renderer
// and the bridge's Router at once.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const defaultActionTimeout = 10 * time.Second

type Options struct {
	// BaseURL is the origin of the host application, e.g.
	// http://localhost:3000.
	BaseURL  string
	Headless bool
	ExecPath string
	// SoftNavigation moves between routes with history.pushState and a
	// popstate event instead of a full page load.
	SoftNavigation bool
	ActionTimeout  time.Duration
}

type Session struct {
	mu            sync.Mutex
	opts          Options
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	onControl     func(Control)
}

func NewSession(opts Options) *Session {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Session{opts: opts}
}

// Open starts the browser, installs the overlay and loads path.
func (s *Session) Open(ctx context.Context, path string) error {
	s.mu.Lock()
	if s.browserCtx != nil {
		select {
		case <-s.browserCtx.Done():
			s.cleanup()
		default:
			s.mu.Unlock()
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if s.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
	browserCtx := s.browserCtx
	s.mu.Unlock()

	chromedp.ListenTarget(browserCtx, s.handleEvent)

	err := chromedp.Run(browserCtx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(overlayScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(s.URL(path)),
	)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.URL(path), err)
	}
	log.Printf("Browser session opened at %s", s.URL(path))
	return nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()
}

func (s *Session) cleanup() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
}

// URL joins path onto the configured base URL.
func (s *Session) URL(path string) string {
	if path == "" {
		path = "/"
	}
	return s.opts.BaseURL + path
}

// run executes actions on the browser tab, bounded by the action timeout
// and by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()
	if browserCtx == nil {
		return fmt.Errorf("browser session is not open")
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, s.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(actionCtx, actions...)
}

// CurrentPath returns location.pathname of the tab.
func (s *Session) CurrentPath(ctx context.Context) (string, error) {
	var path string
	if err := s.run(ctx, chromedp.Evaluate(`window.location.pathname`, &path)); err != nil {
		return "", fmt.Errorf("failed to read current path: %w", err)
	}
	return path, nil
}

// Navigate asks the host application to show path.
func (s *Session) Navigate(ctx context.Context, path string) error {
	if s.opts.SoftNavigation {
		return s.run(ctx, chromedp.Evaluate(softNavigateExpr(path), nil))
	}
	return s.run(ctx, chromedp.Navigate(s.URL(path)))
}

// Screenshot captures the viewport into dir and returns the file path.
func (s *Session) Screenshot(ctx context.Context, dir, name string) (string, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func softNavigateExpr(path string) string {
	return fmt.Sprintf(`(() => { window.history.pushState({}, '', %s); window.dispatchEvent(new PopStateEvent('popstate', { state: {} })); })()`, jsString(path))
}

// jsString quotes v as a JavaScript string literal.
func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// pathOf returns the path component of a page URL, or "" for URLs that are
// not pages of the application (about:blank, data URLs).
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
