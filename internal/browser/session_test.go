package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/trailhead/internal/engine"
	"github.com/rahul/trailhead/internal/tour"
)

func TestPathOf(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000/inventory?tab=1": "/inventory",
		"https://shop.example/":                 "/",
		"https://shop.example":                  "/",
		"about:blank":                           "",
		"data:text/html,hi":                     "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, pathOf(raw), raw)
	}
}

func TestSession_URL(t *testing.T) {
	s := NewSession(Options{BaseURL: "http://localhost:3000/"})
	assert.Equal(t, "http://localhost:3000/inventory", s.URL("/inventory"))
	assert.Equal(t, "http://localhost:3000/", s.URL(""))
}

func TestJSString_EscapesSelector(t *testing.T) {
	assert.Equal(t, `"a[data-x=\"1\"]"`, jsString(`a[data-x="1"]`))
	assert.Equal(t, `"\u003c/script\u003e"`, jsString(`</script>`))
}

func TestExistsExpr_RequiresVisibleElement(t *testing.T) {
	expr := existsExpr(`#nav [data-tour="stock"]`)
	assert.True(t, strings.HasPrefix(expr, "("+readyCheck+")(document.querySelector("))
	assert.Contains(t, expr, `document.querySelector("#nav [data-tour=\"stock\"]")`)
	for _, check := range []string{
		"style.display === 'none'",
		"style.visibility === 'hidden'",
		"style.opacity === '0'",
		"r.width === 0 && r.height === 0",
		"el.offsetParent === null",
		"p.parentElement",
	} {
		assert.Contains(t, expr, check)
	}
}

func TestShowExpr_EmbedsView(t *testing.T) {
	expr, err := showExpr(engine.View{
		RunID: "r1",
		Tour:  "admin",
		Content: tour.Content{
			Title: "It's <here>",
		},
		Controls: engine.Controls{Next: true},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, overlayScript))
	assert.Contains(t, expr, `window.__trailhead.show({"run_id":"r1"`)
	assert.Contains(t, expr, `"title":"It's \u003chere\u003e"`)
}

func TestOverlayScript_HighlightsTarget(t *testing.T) {
	hide := overlayScript[strings.Index(overlayScript, "const hide"):]
	hide = hide[:strings.Index(hide, "};")]
	assert.Contains(t, hide, "unmark()", "hiding the popover clears the highlight")
	assert.Contains(t, overlayScript, "if (target) mark(target);")
	assert.Contains(t, overlayScript, "data-trailhead-target")
}

func TestSession_NotOpen(t *testing.T) {
	s := NewSession(Options{})
	_, err := s.CurrentPath(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.WatchRoutes(context.Background(), func(context.Context, string) {}))
}

func TestHandleEvent_DispatchesControls(t *testing.T) {
	s := NewSession(Options{})
	got := make(chan Control, 1)
	s.OnControl(func(c Control) { got <- c })

	s.handleEvent("unrelated")
	s.handleEvent(bindingCalled(`{"action":"next","run_id":"r1"}`))

	c := <-got
	assert.Equal(t, Control{Action: "next", RunID: "r1"}, c)
}

func bindingCalled(payload string) *runtime.EventBindingCalled {
	return &runtime.EventBindingCalled{Name: bindingName, Payload: payload}
}
