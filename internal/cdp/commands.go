package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	ferrors "frago/internal/errors"
)

// Page groups the Page-domain command helpers.
type Page struct{ s *Session }

// Dom groups the DOM-domain command helpers (named Dom, not DOM, to stay
// idiomatic Go casing for an exported type built from an initialism).
type Dom struct{ s *Session }

// Input groups the Input-domain command helpers.
type Input struct{ s *Session }

// Runtime groups the Runtime-domain command helpers.
type Runtime struct{ s *Session }

// Target groups the Target-domain command helpers used for tab lifecycle.
type Target struct{ s *Session }

// Screenshot groups the Page.captureScreenshot helpers.
type Screenshot struct{ s *Session }

// VisualEffects groups the in-page annotation helpers used to call out
// elements for a human watching the session (highlight, pointer, spotlight,
// annotate, underline) and to remove them again (clear).
type VisualEffects struct{ s *Session }

func (s *Session) Page() Page                     { return Page{s} }
func (s *Session) Dom() Dom                       { return Dom{s} }
func (s *Session) Input() Input                   { return Input{s} }
func (s *Session) Runtime() Runtime               { return Runtime{s} }
func (s *Session) Target() Target                 { return Target{s} }
func (s *Session) Screenshot() Screenshot         { return Screenshot{s} }
func (s *Session) VisualEffects() VisualEffects   { return VisualEffects{s} }

// Navigate sends Page.navigate.
func (p Page) Navigate(ctx context.Context, url string) error {
	_, err := p.s.Send(ctx, "Page.navigate", map[string]any{"url": url})
	return err
}

// GetTitle evaluates document.title.
func (p Page) GetTitle(ctx context.Context) (string, error) {
	return p.s.Runtime().EvaluateString(ctx, "document.title")
}

// GetContent returns the text content of selector, or the whole body when
// selector is empty.
func (p Page) GetContent(ctx context.Context, selector string) (string, error) {
	script := "document.body.textContent || ''"
	if selector != "" {
		script = fmt.Sprintf("document.querySelector(%s)?.textContent || ''", jsonString(selector))
	}
	return p.s.Runtime().EvaluateString(ctx, script)
}

// WaitForLoad evaluates one awaited in-page Promise that resolves true at
// once if document.readyState is already "complete", otherwise on the
// window 'load' event, or after timeoutSeconds via a setTimeout fallback.
func (p Page) WaitForLoad(ctx context.Context, timeoutSeconds float64) (bool, error) {
	script := fmt.Sprintf(`(function() {
		return new Promise((resolve) => {
			if (document.readyState === 'complete') { resolve(true); return; }
			const onLoad = () => { window.removeEventListener('load', onLoad); resolve(true); };
			window.addEventListener('load', onLoad);
			setTimeout(() => {
				window.removeEventListener('load', onLoad);
				resolve(document.readyState === 'complete');
			}, %d);
		});
	})()`, int(timeoutSeconds*1000))

	result, err := p.s.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    script,
		"awaitPromise":  true,
		"returnByValue": true,
	})
	if err != nil {
		return false, err
	}
	return decodeEvaluateBool(result)
}

// WaitForSelector blocks until selector matches a (visible, if requested)
// element, using a MutationObserver driven from injected JavaScript.
func (d Dom) WaitForSelector(ctx context.Context, selector string, timeoutSeconds float64, visible bool) error {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	script := fmt.Sprintf(`(function() {
		return new Promise((resolve, reject) => {
			const matches = () => {
				const el = document.querySelector(%[1]s);
				return el && (!%[2]t || el.offsetParent !== null);
			};
			if (matches()) { resolve(true); return; }
			const observer = new MutationObserver(() => {
				if (matches()) { observer.disconnect(); resolve(true); }
			});
			observer.observe(document.body, {childList: true, subtree: true});
			setTimeout(() => { observer.disconnect(); reject(new Error('timeout waiting for selector')); }, %[3]d);
		});
	})()`, jsonString(selector), visible, int(timeoutSeconds*1000))

	_, err := d.s.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    script,
		"awaitPromise":  true,
		"returnByValue": true,
	})
	return err
}

// GetDocument fetches the root DOM node id.
func (d Dom) GetDocument(ctx context.Context) (int64, error) {
	result, err := d.s.Send(ctx, "DOM.getDocument", nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		Root struct {
			NodeID int64 `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return 0, ferrors.E(ferrors.KindCDPError, "cdp.DOM.getDocument", err)
	}
	return body.Root.NodeID, nil
}

// QuerySelector resolves selector to a node id within nodeID's subtree.
func (d Dom) QuerySelector(ctx context.Context, nodeID int64, selector string) (int64, error) {
	result, err := d.s.Send(ctx, "DOM.querySelector", map[string]any{"nodeId": nodeID, "selector": selector})
	if err != nil {
		return 0, err
	}
	var body struct {
		NodeID int64 `json:"nodeId"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return 0, ferrors.E(ferrors.KindCDPError, "cdp.DOM.querySelector", err)
	}
	if body.NodeID == 0 {
		return 0, ferrors.E(ferrors.KindElementNotFound, "cdp.DOM.querySelector", fmt.Errorf("no match for %q", selector))
	}
	return body.NodeID, nil
}

// BoxModel returns the content quad ([x1,y1,x2,y2,x3,y3,x4,y4]) for nodeID.
func (d Dom) BoxModel(ctx context.Context, nodeID int64) ([]float64, error) {
	result, err := d.s.Send(ctx, "DOM.getBoxModel", map[string]any{"nodeId": nodeID})
	if err != nil {
		return nil, err
	}
	var body struct {
		Model struct {
			Content []float64 `json:"content"`
		} `json:"model"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, ferrors.E(ferrors.KindCDPError, "cdp.DOM.getBoxModel", err)
	}
	if len(body.Model.Content) < 8 {
		return nil, ferrors.E(ferrors.KindElementNotFound, "cdp.DOM.getBoxModel", fmt.Errorf("node %d has no box model", nodeID))
	}
	return body.Model.Content, nil
}

// Click dispatches a mouseMoved/mousePressed/mouseReleased sequence at
// (x, y), the same three-event sequence modern web apps expect.
func (i Input) Click(ctx context.Context, x, y float64, button string) error {
	if button == "" {
		button = "left"
	}
	if _, err := i.s.Send(ctx, "Input.dispatchMouseEvent", map[string]any{"type": "mouseMoved", "x": x, "y": y}); err != nil {
		return err
	}
	if _, err := i.s.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mousePressed", "x": x, "y": y, "button": button, "clickCount": 1,
	}); err != nil {
		return err
	}
	_, err := i.s.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseReleased", "x": x, "y": y, "button": button, "clickCount": 1,
	})
	return err
}

// Type sends one Input.dispatchKeyEvent per rune in text.
func (i Input) Type(ctx context.Context, text string) error {
	for _, r := range text {
		if _, err := i.s.Send(ctx, "Input.dispatchKeyEvent", map[string]any{
			"type": "char", "text": string(r),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Scroll dispatches a mouseWheel event at (x, y) moving by (deltaX, deltaY).
func (i Input) Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error {
	_, err := i.s.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseWheel", "x": x, "y": y, "deltaX": deltaX, "deltaY": deltaY,
	})
	return err
}

// ClickSelector resolves selector to its box model's center point and clicks
// there, composing Dom and Input the way the upstream CLI's convenience
// click() method does.
func (s *Session) ClickSelector(ctx context.Context, selector string, waitTimeoutSeconds float64) error {
	if err := s.Dom().WaitForSelector(ctx, selector, waitTimeoutSeconds, true); err != nil {
		return err
	}
	rootID, err := s.Dom().GetDocument(ctx)
	if err != nil {
		return err
	}
	nodeID, err := s.Dom().QuerySelector(ctx, rootID, selector)
	if err != nil {
		return err
	}
	content, err := s.Dom().BoxModel(ctx, nodeID)
	if err != nil {
		return err
	}
	x := (content[0] + content[2]) / 2
	y := (content[1] + content[5]) / 2
	return s.Input().Click(ctx, x, y, "left")
}

// Evaluate runs an arbitrary JavaScript expression and, when returnByValue
// is true, decodes its resolved value into v.
func (r Runtime) Evaluate(ctx context.Context, expression string, returnByValue bool, v any) error {
	result, err := r.s.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": returnByValue,
	})
	if err != nil {
		return err
	}
	if !returnByValue || v == nil {
		return nil
	}
	var body struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return ferrors.E(ferrors.KindCDPError, "cdp.Runtime.evaluate", err)
	}
	if len(body.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(body.Result.Value, v); err != nil {
		return ferrors.E(ferrors.KindCDPError, "cdp.Runtime.evaluate", err)
	}
	return nil
}

// EvaluateString is a convenience for the common case of evaluating an
// expression that resolves to a string.
func (r Runtime) EvaluateString(ctx context.Context, expression string) (string, error) {
	var out string
	if err := r.Evaluate(ctx, expression, true, &out); err != nil {
		return "", err
	}
	return out, nil
}

func decodeEvaluateBool(result Result) (bool, error) {
	var body struct {
		Result struct {
			Value bool `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return false, ferrors.E(ferrors.KindCDPError, "cdp.decodeEvaluateBool", err)
	}
	return body.Result.Value, nil
}

// CreateTarget opens a new tab at url and returns its target id.
func (t Target) CreateTarget(ctx context.Context, url string, width, height int) (string, error) {
	params := map[string]any{"url": url}
	if width > 0 {
		params["width"] = width
	}
	if height > 0 {
		params["height"] = height
	}
	result, err := t.s.Send(ctx, "Target.createTarget", params)
	if err != nil {
		return "", err
	}
	var body struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return "", ferrors.E(ferrors.KindCDPError, "cdp.Target.createTarget", err)
	}
	return body.TargetID, nil
}

// CloseTarget closes a tab by target id.
func (t Target) CloseTarget(ctx context.Context, targetID string) (bool, error) {
	result, err := t.s.Send(ctx, "Target.closeTarget", map[string]any{"targetId": targetID})
	if err != nil {
		return false, err
	}
	var body struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(result, &body)
	return body.Success, nil
}

// ActivateTarget brings a tab to the foreground.
func (t Target) ActivateTarget(ctx context.Context, targetID string) error {
	_, err := t.s.Send(ctx, "Target.activateTarget", map[string]any{"targetId": targetID})
	return err
}

// GetTargets lists every open target (tab, browser, etc).
func (t Target) GetTargets(ctx context.Context) ([]map[string]any, error) {
	result, err := t.s.Send(ctx, "Target.getTargets", map[string]any{})
	if err != nil {
		return nil, err
	}
	var body struct {
		TargetInfos []map[string]any `json:"targetInfos"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, ferrors.E(ferrors.KindCDPError, "cdp.Target.getTargets", err)
	}
	return body.TargetInfos, nil
}

// ScreenshotData is the decoded Page.captureScreenshot payload.
type ScreenshotData struct {
	Base64 string `json:"data"`
}

// Capture takes a screenshot via Page.captureScreenshot. fullPage maps to
// captureBeyondViewport; quality only applies to jpeg format.
func (sc Screenshot) Capture(ctx context.Context, format string, fullPage bool, quality int) (ScreenshotData, error) {
	if format == "" {
		format = "png"
	}
	params := map[string]any{
		"format":                format,
		"captureBeyondViewport": fullPage,
	}
	if format == "jpeg" {
		params["quality"] = quality
	}
	result, err := sc.s.Send(ctx, "Page.captureScreenshot", params)
	if err != nil {
		return ScreenshotData{}, err
	}
	var data ScreenshotData
	if err := json.Unmarshal(result, &data); err != nil {
		return ScreenshotData{}, ferrors.E(ferrors.KindCDPError, "cdp.Page.captureScreenshot", err)
	}
	return data, nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// frago-* markers let Clear find and strip every effect this session added,
// regardless of how long ago it ran or whether its own lifetime already
// expired client-side.
const visualEffectsMarker = "data-frago-effect"

// autoRemoveSnippet returns a setTimeout call that runs cleanup after
// lifetimeMs, or an empty string when lifetimeMs is 0 (effect persists
// until Clear is called).
func autoRemoveSnippet(lifetimeMs int, cleanup string) string {
	if lifetimeMs <= 0 {
		return ""
	}
	return fmt.Sprintf("setTimeout(function() { %s }, %d);", cleanup, lifetimeMs)
}

// Highlight outlines the element matched by selector in color for lifetimeMs
// (0 = until Clear).
func (v VisualEffects) Highlight(ctx context.Context, selector, color string, borderWidth, lifetimeMs int) error {
	if color == "" {
		color = "magenta"
	}
	if borderWidth <= 0 {
		borderWidth = 3
	}
	script := fmt.Sprintf(`(function() {
  const el = document.querySelector(%s);
  if (!el) return;
  el.style.border = '%dpx solid %s';
  el.style.outline = '%dpx solid %s';
  el.setAttribute('%s', 'highlight');
  %s
})();`, jsonString(selector), borderWidth, color, borderWidth, color, visualEffectsMarker,
		autoRemoveSnippet(lifetimeMs, fmt.Sprintf("if (el) { el.style.border = ''; el.style.outline = ''; el.removeAttribute('%s'); }", visualEffectsMarker)))
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}

// Pointer draws a small marker at the center of selector's bounding box,
// useful for narrating where a click is about to land.
func (v VisualEffects) Pointer(ctx context.Context, selector, color string, lifetimeMs int) error {
	if color == "" {
		color = "red"
	}
	script := fmt.Sprintf(`(function() {
  const el = document.querySelector(%s);
  if (!el) return;
  const rect = el.getBoundingClientRect();
  const dot = document.createElement('div');
  dot.setAttribute('%s', 'pointer');
  dot.style.cssText = 'position:fixed;left:' + (rect.left + rect.width / 2 - 6) + 'px;top:' + (rect.top + rect.height / 2 - 6) + 'px;width:12px;height:12px;border-radius:50%%;background:%s;z-index:999999;pointer-events:none;box-shadow:0 0 0 4px rgba(0,0,0,0.15);';
  document.body.appendChild(dot);
  %s
})();`, jsonString(selector), visualEffectsMarker, color,
		autoRemoveSnippet(lifetimeMs, "dot.remove();"))
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}

// Spotlight dims the rest of the page behind a semi-transparent overlay
// while lifting selector's element above it.
func (v VisualEffects) Spotlight(ctx context.Context, selector string, opacity float64, lifetimeMs int) error {
	if opacity <= 0 {
		opacity = 0.7
	}
	script := fmt.Sprintf(`(function() {
  const el = document.querySelector(%s);
  if (!el) return;
  const overlay = document.createElement('div');
  overlay.setAttribute('%s', 'spotlight');
  overlay.style.cssText = 'position:fixed;top:0;left:0;width:100%%;height:100%%;background:rgba(0,0,0,%v);z-index:999998;pointer-events:none;';
  document.body.appendChild(overlay);
  el.style.position = 'relative';
  el.style.zIndex = '999999';
  el.setAttribute('%s', 'spotlight-target');
  %s
})();`, jsonString(selector), visualEffectsMarker, opacity, visualEffectsMarker,
		autoRemoveSnippet(lifetimeMs, fmt.Sprintf("overlay.remove(); if (el) { el.style.zIndex = ''; el.removeAttribute('%s'); }", visualEffectsMarker)))
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}

// Annotate attaches a small text label to selector's element at position
// ("top", "bottom", "left", "right"; defaults to "top").
func (v VisualEffects) Annotate(ctx context.Context, selector, text, position string, lifetimeMs int) error {
	offsets := map[string]string{
		"top":    "bottom: 100%; left: 50%; transform: translateX(-50%);",
		"bottom": "top: 100%; left: 50%; transform: translateX(-50%);",
		"left":   "right: 100%; top: 50%; transform: translateY(-50%);",
		"right":  "left: 100%; top: 50%; transform: translateY(-50%);",
	}
	style, ok := offsets[position]
	if !ok {
		style = offsets["top"]
	}
	script := fmt.Sprintf(`(function() {
  const el = document.querySelector(%s);
  if (!el) return;
  const note = document.createElement('div');
  note.setAttribute('%s', 'annotation');
  note.textContent = %s;
  note.style.cssText = 'position:absolute;%s padding:4px 8px;background:rgba(0,0,0,0.8);color:#fff;font-size:12px;border-radius:4px;white-space:nowrap;z-index:999999;pointer-events:none;';
  el.style.position = 'relative';
  el.appendChild(note);
  %s
})();`, jsonString(selector), visualEffectsMarker, jsonString(text), style,
		autoRemoveSnippet(lifetimeMs, "note.remove();"))
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}

// Underline draws a colored line beneath selector's element.
func (v VisualEffects) Underline(ctx context.Context, selector, color string, lifetimeMs int) error {
	if color == "" {
		color = "magenta"
	}
	script := fmt.Sprintf(`(function() {
  const el = document.querySelector(%s);
  if (!el) return;
  el.style.borderBottom = '3px solid %s';
  el.setAttribute('%s', 'underline');
  %s
})();`, jsonString(selector), color, visualEffectsMarker,
		autoRemoveSnippet(lifetimeMs, fmt.Sprintf("if (el) { el.style.borderBottom = ''; el.removeAttribute('%s'); }", visualEffectsMarker)))
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}

// Clear removes every visual effect this session has added, regardless of
// whether its own lifetime has already fired.
func (v VisualEffects) Clear(ctx context.Context) error {
	script := fmt.Sprintf(`(function() {
  document.querySelectorAll('[%s]').forEach(function(node) {
    const kind = node.getAttribute('%s');
    node.style.border = '';
    node.style.outline = '';
    node.style.borderBottom = '';
    node.style.zIndex = '';
    node.removeAttribute('%s');
    if (kind === 'pointer' || kind === 'spotlight' || kind === 'annotation') {
      node.remove();
    }
  });
})();`, visualEffectsMarker, visualEffectsMarker, visualEffectsMarker)
	_, err := v.s.Send(ctx, "Runtime.evaluate", map[string]any{"expression": script})
	return err
}
