package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/rahul/trailhead/internal/engine"
)

const bindingName = "trailheadControl"

// Control is a button press on the popover.
type Control struct {
	Action string `json:"action"` // next, back, skip, finish
	RunID  string `json:"run_id"`
}

const overlayScript = `(() => {
  if (window.__trailhead) return;
  let root = null;
  const send = (action, runId) => {
    if (typeof window.trailheadControl === 'function') {
      window.trailheadControl(JSON.stringify({ action: action, run_id: runId }));
    }
  };
  let marked = null;
  const unmark = () => {
    if (!marked) return;
    marked.el.style.outline = marked.outline;
    marked.el.style.outlineOffset = marked.outlineOffset;
    marked.el.style.boxShadow = marked.boxShadow;
    marked.el.removeAttribute('data-trailhead-target');
    marked = null;
  };
  const mark = (el) => {
    marked = { el: el, outline: el.style.outline, outlineOffset: el.style.outlineOffset, boxShadow: el.style.boxShadow };
    el.setAttribute('data-trailhead-target', '');
    el.style.outline = '3px solid #2563eb';
    el.style.outlineOffset = '4px';
    el.style.boxShadow = '0 0 0 9999px rgba(0,0,0,.45)';
  };
  const hide = () => {
    unmark();
    if (root) { root.remove(); root = null; }
  };
  const place = (box, view) => {
    const target = view.anchored && view.content.target ? document.querySelector(view.content.target) : null;
    if (target) mark(target);
    if (!target || view.placement === 'center') {
      box.style.top = '50%';
      box.style.left = '50%';
      box.style.transform = 'translate(-50%, -50%)';
      return;
    }
    const r = target.getBoundingClientRect();
    const gap = 12;
    switch (view.placement) {
    case 'top':
      box.style.top = (r.top - gap) + 'px'; box.style.left = r.left + 'px'; box.style.transform = 'translateY(-100%)';
      break;
    case 'left':
      box.style.top = r.top + 'px'; box.style.left = (r.left - gap) + 'px'; box.style.transform = 'translateX(-100%)';
      break;
    case 'right':
      box.style.top = r.top + 'px'; box.style.left = (r.right + gap) + 'px';
      break;
    default:
      box.style.top = (r.bottom + gap) + 'px'; box.style.left = r.left + 'px';
    }
  };
  const show = (view) => {
    hide();
    const box = document.createElement('div');
    box.setAttribute('data-trailhead-run', view.run_id);
    box.style.cssText = 'position:fixed;z-index:2147483647;max-width:320px;padding:12px;background:#fff;color:#111;border-radius:8px;box-shadow:0 4px 16px rgba(0,0,0,.25);font:14px sans-serif';
    const title = document.createElement('strong');
    title.textContent = view.content.title;
    box.appendChild(title);
    const body = document.createElement('div');
    body.innerHTML = view.content.body;
    box.appendChild(body);
    const foot = document.createElement('div');
    foot.style.cssText = 'margin-top:8px;display:flex;gap:6px;align-items:center';
    const count = document.createElement('span');
    count.textContent = view.position + ' / ' + view.total;
    foot.appendChild(count);
    const button = (label, action) => {
      const b = document.createElement('button');
      b.textContent = label;
      b.onclick = () => send(action, view.run_id);
      foot.appendChild(b);
    };
    if (view.controls.skip) button('Skip', 'skip');
    if (view.controls.back) button('Back', 'back');
    if (view.controls.next) button('Next', 'next');
    if (view.controls.finish) button('Finish', 'finish');
    box.appendChild(foot);
    document.body.appendChild(box);
    place(box, view);
    root = box;
  };
  window.__trailhead = { show: show, hide: hide };
})()`

// OnControl registers fn to receive popover button presses. It is called on
// its own goroutine.
func (s *Session) OnControl(fn func(Control)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onControl = fn
}

// Show draws v over the page, replacing any popover already shown.
func (s *Session) Show(ctx context.Context, v engine.View) error {
	expr, err := showExpr(v)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Evaluate(expr, nil))
}

// Hide removes the popover.
func (s *Session) Hide(ctx context.Context) error {
	return s.run(ctx, chromedp.Evaluate(`window.__trailhead && window.__trailhead.hide()`, nil))
}

// showExpr installs the overlay if this document does not have it yet and
// shows v.
func showExpr(v engine.View) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode step view: %w", err)
	}
	return fmt.Sprintf("%s;\nwindow.__trailhead.show(%s)", overlayScript, data), nil
}

func (s *Session) handleEvent(ev interface{}) {
	e, ok := ev.(*runtime.EventBindingCalled)
	if !ok || e.Name != bindingName {
		return
	}
	var c Control
	if err := json.Unmarshal([]byte(e.Payload), &c); err != nil {
		log.Printf("Warning: malformed popover control %q: %v", e.Payload, err)
		return
	}
	s.mu.Lock()
	fn := s.onControl
	s.mu.Unlock()
	if fn != nil {
		go fn(c)
	}
}
