package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// WatchRoutes calls fn with the new path whenever the main frame navigates,
// by a full load or within the document, until ctx is done.
func (s *Session) WatchRoutes(ctx context.Context, fn func(ctx context.Context, path string)) error {
	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()
	if browserCtx == nil {
		return fmt.Errorf("browser session is not open")
	}

	listenCtx, cancel := context.WithCancel(browserCtx)
	context.AfterFunc(ctx, cancel)

	var (
		mu        sync.Mutex
		mainFrame cdp.FrameID
	)
	emit := func(raw string) {
		if path := pathOf(raw); path != "" {
			go fn(ctx, path)
		}
	}

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			mu.Lock()
			mainFrame = e.Frame.ID
			mu.Unlock()
			emit(e.Frame.URL)
		case *page.EventNavigatedWithinDocument:
			mu.Lock()
			main := mainFrame
			mu.Unlock()
			if main != "" && e.FrameID != main {
				return
			}
			emit(e.URL)
		}
	})
	return nil
}
