// internal/knowledge/editor.go
package knowledge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/browser/dom"
	"github.com/deskmate-tools/deskmate-cli/internal/poll"
)

// codeButtonScript injects an inline-code format button into every editor
// toolbar that does not have one yet. The marker class keeps repeated runs
// from stacking buttons on the same toolbar. Returns how many toolbars were
// extended on this pass.
const codeButtonScript = `(function() {
	if (!window.tinymce || !window.tinymce.activeEditor) return -1;
	const tinymce = window.tinymce;
	let injected = 0;
	const preButtons = document.querySelectorAll('div[data-test-id="toolbarPreButton"]');
	for (const preButton of preButtons) {
		const toolbar = preButton.parentElement;
		if (!toolbar || toolbar.classList.contains('deskmate-toolbar')) continue;
		toolbar.classList.add('deskmate-toolbar');

		const button = document.createElement('div');
		button.setAttribute('tabindex', '0');
		button.setAttribute('role', 'button');
		button.setAttribute('data-test-id', 'toolbarCodeFormatButton');
		button.classList.add('deskmate-code-format-button');

		const label = document.createElement('div');
		label.setAttribute('title', 'Code Format');
		const icon = document.createElement('img');
		icon.setAttribute('src', 'https://www.tiny.cloud/docs/images/icons/code-sample.svg');
		icon.setAttribute('alt', 'code format');
		label.appendChild(icon);
		button.appendChild(label);
		toolbar.insertBefore(button, preButton);

		tinymce.activeEditor.formatter.register('codeformat', { inline: 'code' });

		button.addEventListener('click', function(e) {
			tinymce.activeEditor.focus();
			tinymce.activeEditor.formatter.toggle('codeformat');
			tinymce.DOM.toggleClass(e.currentTarget, 'deskmate-code-format-active');
		});

		tinymce.activeEditor.on('NodeChange', function(e) {
			if (e.element.nodeName === 'CODE') {
				button.classList.add('deskmate-code-format-active');
			} else {
				button.classList.remove('deskmate-code-format-active');
			}
		});

		injected++;
	}
	return injected;
})()`

// submissionListenerScript hooks the article create/update buttons so that
// clicking one wraps the gated Fast Track sections before submission: the
// content after the "Resolution" and "Additional Information" headings is
// wrapped in a div unless one is already there. The marker class keeps
// repeated runs from stacking listeners on the same button. Returns how many
// buttons were wired on this pass.
const submissionListenerScript = `(function() {
	if (!window.tinymce || !window.tinymce.activeEditor) return -1;
	const tinymce = window.tinymce;

	const wrapGatedContent = function() {
		const sections = document.querySelectorAll(
			'div[data-test-id="sectionSelector-section"], div[data-test-id="section-name"]');
		let fastTrack = false;
		for (const section of sections) {
			if (section.textContent === 'Fast Track') fastTrack = true;
		}
		if (!fastTrack) return;

		const headings = tinymce.activeEditor.contentDocument.getElementsByTagName('h2');
		for (const heading of headings) {
			if (heading.textContent !== 'Resolution' && heading.textContent !== 'Additional Information') continue;
			if (heading.nextSibling && heading.nextSibling.tagName === 'DIV') continue;
			tinymce.dom.DomQuery(heading).nextUntil().wrapAll('<div>');
		}
	};

	let wired = 0;
	const buttons = document.querySelectorAll(
		'div[data-test-id="createButton-menu-button"], div[data-test-id="updateButton-menu-button"]');
	for (const button of buttons) {
		if (button.classList.contains('deskmate-submit-listen')) continue;
		button.classList.add('deskmate-submit-listen');
		button.addEventListener('click', wrapGatedContent);
		wired++;
	}
	return wired;
})()`

// Editor extends the article editor: an inline-code format button on every
// toolbar, and submission listeners that wrap gated Fast Track content when
// the article is saved. The editor (tinymce) loads lazily and toolbars and
// buttons come and go as the agent opens sections, so the injection is re-run
// on a slow cadence.
type Editor struct {
	eval     dom.Evaluator
	interval time.Duration
	logger   *zap.Logger
}

// NewEditor creates an Editor polling at the widget cadence.
func NewEditor(eval dom.Evaluator, interval time.Duration, logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Editor{eval: eval, interval: interval, logger: logger.Named("editor")}
}

// InjectCodeButton performs one injection pass. It reports how many toolbars
// were extended; -1 from the page means the editor has not loaded yet.
func (e *Editor) InjectCodeButton(ctx context.Context) (int, error) {
	var injected int
	if err := e.eval.Evaluate(ctx, codeButtonScript, &injected); err != nil {
		return 0, err
	}
	return injected, nil
}

// WireSubmissionListeners performs one listener pass over the article
// create/update buttons. It reports how many buttons were wired; -1 from the
// page means the editor has not loaded yet.
func (e *Editor) WireSubmissionListeners(ctx context.Context) (int, error) {
	var wired int
	if err := e.eval.Evaluate(ctx, submissionListenerScript, &wired); err != nil {
		return 0, err
	}
	return wired, nil
}

// WaitForEditor blocks until the page reports a loaded editor instance.
func (e *Editor) WaitForEditor(ctx context.Context) error {
	return poll.UntilTrue(ctx, e.interval, func(ctx context.Context) bool {
		var loaded bool
		if err := e.eval.Evaluate(ctx, `!!(window.tinymce && window.tinymce.activeEditor)`, &loaded); err != nil {
			e.logger.Debug("editor probe failed, retrying", zap.Error(err))
			return false
		}
		return loaded
	})
}

// Run keeps the editor enhanced for the lifetime of ctx: wait for the
// editor, then re-run both passes on every tick so toolbars and buttons
// rendered later are picked up too.
func (e *Editor) Run(ctx context.Context) error {
	if err := e.WaitForEditor(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		n, err := e.InjectCodeButton(ctx)
		if err != nil {
			e.logger.Debug("injection pass failed, retrying", zap.Error(err))
		} else if n > 0 {
			e.logger.Info("toolbar extended", zap.Int("toolbars", n))
		}
		wired, err := e.WireSubmissionListeners(ctx)
		if err != nil {
			e.logger.Debug("listener pass failed, retrying", zap.Error(err))
		} else if wired > 0 {
			e.logger.Info("submission listeners wired", zap.Int("buttons", wired))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
