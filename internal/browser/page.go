package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// readyCheck is true when el is attached, rendered with a size, and no
// ancestor hides it.
const readyCheck = `(el) => {
  if (!el || !document.contains(el)) return false;
  const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
  const r = el.getBoundingClientRect();
  if (r.width === 0 && r.height === 0) return false;
  if (el.offsetParent === null && style.position === 'static') return false;
  for (let p = el.parentElement; p; p = p.parentElement) {
    const ps = window.getComputedStyle(p);
    if (ps.display === 'none' || ps.visibility === 'hidden') return false;
  }
  return true;
}`

// Exists reports whether selector matches an element that is ready to be
// highlighted. A mounted but hidden element does not count.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(existsExpr(selector), &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// ScrollIntoView smoothly centers the element matched by selector.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (el) el.scrollIntoView({ behavior: 'smooth', block: 'center' });
  return el !== null;
})()`, jsString(selector))
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("element %s disappeared before scrolling", selector)
	}
	return nil
}

func existsExpr(selector string) string {
	return fmt.Sprintf(`(%s)(document.querySelector(%s))`, readyCheck, jsString(selector))
}
