// internal/publish/inject.go
package publish

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/internal/browser"
	"github.com/tistorylab/autopub/internal/htmlutil"
)

// Injection strategy names, reported in logs and errors.
const (
	methodRichEditor      = "rich_editor"
	methodIframe          = "iframe"
	methodTextarea        = "textarea"
	methodContentEditable = "contenteditable"
)

// injectionProbe is a short marker typed into a candidate editor to prove
// keystrokes actually land before committing the full text.
const injectionProbe = "autopub-probe"

var richEditorSelectors = []string{
	".ProseMirror",
	`[contenteditable="true"].ProseMirror`,
}

// injectContent writes the post body into whatever editor the compose page
// presents. Strategies run in order; the first that verifies wins. All of
// them receive the plain-text conversion of the HTML.
func injectContent(ctx context.Context, page browser.Page, html string, logger *zap.Logger) (string, error) {
	text := htmlutil.ToPlainText(html)
	if text == "" {
		return "", fmt.Errorf("post body is empty after conversion")
	}

	strategies := []struct {
		name string
		fn   func(context.Context, browser.Page, string) (bool, error)
	}{
		{methodRichEditor, injectRichEditor},
		{methodIframe, injectIframe},
		{methodTextarea, injectTextarea},
		{methodContentEditable, injectContentEditable},
	}

	tried := make([]string, 0, len(strategies))
	for _, s := range strategies {
		tried = append(tried, s.name)
		ok, err := s.fn(ctx, page, text)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("Injection strategy errored.", zap.String("method", s.name), zap.Error(err))
			continue
		}
		if ok {
			logger.Info("Content injected.", zap.String("method", s.name), zap.Int("text_len", len(text)))
			return s.name, nil
		}
		logger.Debug("Injection strategy did not apply.", zap.String("method", s.name))
	}

	return "", fmt.Errorf("content injection failed, tried %s", strings.Join(tried, ", "))
}

// injectRichEditor drives the ProseMirror editor with real keystrokes,
// probing first because the editor silently drops input while initializing.
func injectRichEditor(ctx context.Context, page browser.Page, text string) (bool, error) {
	sel, err := page.FindFirst(ctx, richEditorSelectors)
	if err != nil {
		return false, err
	}
	if sel == "" {
		return false, nil
	}

	if err := page.Click(ctx, sel); err != nil {
		return false, err
	}
	if err := page.TypeChunked(ctx, injectionProbe); err != nil {
		return false, err
	}

	var probeLanded bool
	probeExpr := fmt.Sprintf(
		`(document.querySelector(%q)?.textContent || '').includes(%q)`,
		sel, injectionProbe)
	if err := page.Evaluate(ctx, probeExpr, &probeLanded); err != nil {
		return false, err
	}
	if !probeLanded {
		return false, nil
	}

	clearExpr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		el.focus();
		document.execCommand('selectAll', false, null);
		document.execCommand('delete', false, null);
		return true;
	})()`, sel)
	if err := page.Evaluate(ctx, clearExpr, nil); err != nil {
		return false, err
	}

	if err := page.TypeChunked(ctx, text); err != nil {
		return false, err
	}

	var landed bool
	verifyExpr := fmt.Sprintf(
		`(document.querySelector(%q)?.textContent || '').length > 0`, sel)
	if err := page.Evaluate(ctx, verifyExpr, &landed); err != nil {
		return false, err
	}
	return landed, nil
}

// injectIframe targets legacy editors that host a content-editable
// document inside an iframe of plausible editor size.
func injectIframe(ctx context.Context, page browser.Page, text string) (bool, error) {
	encoded, err := json.MarshalToString(text)
	if err != nil {
		return false, err
	}

	expr := fmt.Sprintf(`(() => {
		const text = %s;
		for (const frame of document.querySelectorAll('iframe')) {
			let doc = null;
			try { doc = frame.contentDocument; } catch (e) { continue; }
			if (!doc || !doc.body) continue;
			const editable = doc.body.isContentEditable || doc.body.contentEditable === 'true' || doc.designMode === 'on';
			if (!editable) continue;
			if (frame.getBoundingClientRect().height <= 100) continue;
			doc.body.innerText = text;
			doc.body.dispatchEvent(new Event('input', { bubbles: true }));
			return (doc.body.innerText || '').length > 0;
		}
		return false;
	})()`, encoded)

	var ok bool
	if err := page.Evaluate(ctx, expr, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// injectTextarea sets the value of a visible, editor-sized textarea using
// the native setter so framework listeners observe the change.
func injectTextarea(ctx context.Context, page browser.Page, text string) (bool, error) {
	encoded, err := json.MarshalToString(text)
	if err != nil {
		return false, err
	}

	expr := fmt.Sprintf(`(() => {
		const text = %s;
		for (const ta of document.querySelectorAll('textarea')) {
			const rect = ta.getBoundingClientRect();
			if (rect.height <= 100) continue;
			const setter = Object.getOwnPropertyDescriptor(HTMLTextAreaElement.prototype, 'value').set;
			setter.call(ta, text);
			ta.dispatchEvent(new Event('input', { bubbles: true }));
			return ta.value.length >= text.length;
		}
		return false;
	})()`, encoded)

	var ok bool
	if err := page.Evaluate(ctx, expr, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// injectContentEditable is the last resort: any sufficiently large
// contenteditable region gets the text directly.
func injectContentEditable(ctx context.Context, page browser.Page, text string) (bool, error) {
	encoded, err := json.MarshalToString(text)
	if err != nil {
		return false, err
	}

	expr := fmt.Sprintf(`(() => {
		const text = %s;
		for (const el of document.querySelectorAll('[contenteditable="true"]')) {
			const rect = el.getBoundingClientRect();
			if (rect.height <= 100 || rect.width <= 200) continue;
			el.focus();
			el.innerText = text;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			return (el.innerText || '').length > 0;
		}
		return false;
	})()`, encoded)

	var ok bool
	if err := page.Evaluate(ctx, expr, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
