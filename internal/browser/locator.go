// File: internal/browser/locator.go
package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snabbsalud/agendabot/internal/textmatch"
)

// The portal publishes no API; rendered DOM and visible labels are the only
// integration surface. The locator therefore works in two tiers: structural
// selector candidates first (fast, precise), then a text scan over interactive
// elements (slow, resilient to markup churn). First visible match in document
// order wins; there is no scoring.

// DefaultTextScope is the element set scanned during the text fallback.
const DefaultTextScope = "button,[role='button'],a[href],.btn,.button,li,div"

// Query describes one element lookup.
type Query struct {
	// Selectors are tried in order before any text matching.
	Selectors []string
	// Text, when set, is matched against candidate labels with textmatch semantics.
	Text string
	// TextScope overrides DefaultTextScope for the fallback scan.
	TextScope string
	// ClickAncestor walks from the matched node to the nearest clickable ancestor
	// before acting. Card layouts nest the label inside the click target, so the
	// matched text node itself must not be clicked.
	ClickAncestor string
}

// Result is the wire shape every locator script resolves to.
type Result struct {
	Found      bool     `json:"found"`
	Clicked    bool     `json:"clicked"`
	Strategy   string   `json:"strategy"`
	Method     string   `json:"method"`
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Enabled    bool     `json:"enabled"`
	Candidates []string `json:"candidates"`
}

// jsString marshals s into a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// jsStringArray marshals ss into a JS array literal.
func jsStringArray(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

// prelude emits the helpers shared by all locator scripts: the normalizer twin,
// the visibility filter and the label matcher.
func prelude(q Query) string {
	scope := q.TextScope
	if scope == "" {
		scope = DefaultTextScope
	}
	return fmt.Sprintf(`
	const norm = %s;
	const visible = (el) => {
		if (!el) return false;
		const st = getComputedStyle(el);
		if (st.display === "none" || st.visibility === "hidden") return false;
		return el.offsetParent !== null || st.position === "fixed";
	};
	const target = norm(%s);
	const labelOf = (el) => (el.textContent || "").trim();
	const matches = (el) => {
		if (!target) return true;
		const t = norm(el.textContent || "");
		if (!t) return false;
		return t === target || t.includes(target) || target.includes(t);
	};
	const scopeSel = %s;
	const structural = %s;
	const candidates = [];
	const firstMatch = () => {
		for (const sel of structural) {
			let nodes;
			try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of nodes) {
				if (!visible(el)) continue;
				candidates.push(labelOf(el));
				if (matches(el)) return { el, strategy: sel };
			}
		}
		if (target) {
			for (const el of document.querySelectorAll(scopeSel)) {
				if (!visible(el)) continue;
				const lbl = labelOf(el);
				if (lbl && candidates.length < 40) candidates.push(lbl);
				if (matches(el)) return { el, strategy: "text" };
			}
		}
		return null;
	};`,
		textmatch.NormalizeJS, jsString(q.Text), jsString(scope), jsStringArray(q.Selectors))
}

// ActivateJS is the single logical "activate control" operation. It tries an
// ordered list of dispatch strategies and reports the first one the page accepted;
// the target framework's click handling is not reliably reachable through one
// interaction method. Exposed so callers composing bespoke scan scripts reuse the
// same ladder instead of firing ad hoc event combinations.
const ActivateJS = `
	const activate = (el) => {
		el.scrollIntoView({ block: "center", inline: "center" });
		try { el.click(); return "click"; } catch (e) {}
		try {
			el.dispatchEvent(new MouseEvent("click", { bubbles: true, cancelable: true, view: window }));
			return "mouse-event";
		} catch (e) {}
		try {
			for (const type of ["pointerdown", "mousedown", "pointerup", "mouseup", "click"]) {
				const ctor = type.startsWith("pointer") ? PointerEvent : MouseEvent;
				el.dispatchEvent(new ctor(type, { bubbles: true, cancelable: true }));
			}
			return "pointer-sequence";
		} catch (e) {}
		return "";
	};`

// FindJS builds a script resolving to a Result that reports presence without acting.
func FindJS(q Query) string {
	return fmt.Sprintf(`(() => {%s
	const hit = firstMatch();
	if (!hit) return { found: false, candidates };
	const disabled = hit.el.disabled === true || hit.el.getAttribute("aria-disabled") === "true";
	return { found: true, strategy: hit.strategy, label: labelOf(hit.el), enabled: !disabled, candidates };
})()`, prelude(q))
}

// ClickJS builds a script that locates and activates the first qualifying element.
// With ClickAncestor set, the click lands on the nearest matching ancestor of the
// matched node instead of the node itself.
func ClickJS(q Query) string {
	ancestor := ""
	if q.ClickAncestor != "" {
		ancestor = fmt.Sprintf(`
	if (hit) {
		const up = hit.el.closest(%s);
		if (!up) return { found: true, clicked: false, label: labelOf(hit.el), candidates };
		hit = { el: up, strategy: hit.strategy + ">ancestor" };
	}`, jsString(q.ClickAncestor))
	}
	return fmt.Sprintf(`(() => {%s%s
	let hit = firstMatch();%s
	if (!hit) return { found: false, clicked: false, candidates };
	const label = labelOf(hit.el);
	const method = activate(hit.el);
	return { found: true, clicked: method !== "", strategy: hit.strategy, method, label, candidates };
})()`, prelude(q), ActivateJS, ancestor)
}

// SetValueJS builds a script that finds the first visible input among the selector
// candidates, clears it and forces the value through the native setter plus
// synthetic input/change events. The UI framework only reacts to its own event
// contract, not to raw field mutation.
func SetValueJS(selectors []string, value string) string {
	return fmt.Sprintf(`(() => {
	const sels = %s;
	const val = %s;
	const visible = (el) => {
		const st = getComputedStyle(el);
		return st.display !== "none" && st.visibility !== "hidden" && el.offsetParent !== null;
	};
	for (const sel of sels) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			if (!visible(el)) continue;
			el.focus();
			const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
			const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
			setter.call(el, val);
			el.dispatchEvent(new Event("input", { bubbles: true }));
			el.dispatchEvent(new Event("change", { bubbles: true }));
			return { found: true, strategy: sel, value: el.value };
		}
	}
	return { found: false, candidates: [] };
})()`, jsStringArray(selectors), jsString(value))
}

// ReadValueJS builds a script reporting the current value of the first visible
// input among the selector candidates.
func ReadValueJS(selectors []string) string {
	return fmt.Sprintf(`(() => {
	const sels = %s;
	const visible = (el) => {
		const st = getComputedStyle(el);
		return st.display !== "none" && st.visibility !== "hidden" && el.offsetParent !== null;
	};
	for (const sel of sels) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			if (!visible(el)) continue;
			return { found: true, strategy: sel, value: el.value || "" };
		}
	}
	return { found: false };
})()`, jsStringArray(selectors))
}

// FirstVisibleSelector reports the first structural candidate that resolves to a
// visible element, for callers that need a concrete selector for native key input.
func FirstVisibleSelector(selectors []string) string {
	return fmt.Sprintf(`(() => {
	const sels = %s;
	const visible = (el) => {
		const st = getComputedStyle(el);
		return st.display !== "none" && st.visibility !== "hidden" && el.offsetParent !== null;
	};
	for (const sel of sels) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			if (visible(el)) return { found: true, strategy: sel };
		}
	}
	return { found: false };
})()`, jsStringArray(selectors))
}

// DiagnosticSummary renders observed candidate labels for failure messages.
func DiagnosticSummary(candidates []string) string {
	if len(candidates) == 0 {
		return "no visible candidates"
	}
	const max = 10
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return strings.Join(candidates, ", ")
}
