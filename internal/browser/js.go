package browser

// Injected page scripts. Every element the scripts surface is stamped with a
// data-cst-ref attribute so later mutations can address it with a plain CSS
// selector; vendor selectors pass through the same calls unchanged.

// refHelperJS stamps an element with a stable ref attribute and returns the
// selector addressing it. Shared preamble for the collection scripts.
const refHelperJS = `
	const refOf = (el) => {
		if (!el.hasAttribute('data-cst-ref')) {
			window.__cstRefSeq = (window.__cstRefSeq || 0) + 1;
			el.setAttribute('data-cst-ref', String(window.__cstRefSeq));
		}
		return '[data-cst-ref="' + el.getAttribute('data-cst-ref') + '"]';
	};
	const attrsOf = (el) => {
		const out = {};
		for (const a of el.attributes) {
			if (a.name === 'data-cst-ref') continue;
			out[a.name] = a.value;
		}
		return out;
	};
	const isVisible = (el) => {
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden' || parseFloat(st.opacity) === 0) return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const textOf = (el) => (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
	const actionKind = (el) => {
		const tag = el.tagName.toLowerCase();
		const role = (el.getAttribute('role') || '').toLowerCase();
		const type = (el.getAttribute('type') || '').toLowerCase();
		if (role === 'switch' || el.hasAttribute('aria-checked') && role !== 'checkbox') return 'toggle';
		if (type === 'checkbox' || role === 'checkbox') return 'checkbox';
		if (tag === 'select') return 'dropdown';
		if (tag === 'a') return 'link';
		return 'button';
	};
	const actionView = (el) => ({
		ref: refOf(el),
		kind: actionKind(el),
		tag: el.tagName.toLowerCase(),
		text: textOf(el).slice(0, 300),
		aria_label: el.getAttribute('aria-label') || '',
		title: el.getAttribute('title') || '',
		attributes: attrsOf(el),
		visible: isVisible(el)
	});
	const actionSelector = 'button, a[href], [role="button"], [role="switch"], [role="checkbox"], input[type="button"], input[type="submit"], input[type="checkbox"], select';
`

// scanJS collects banner-candidate regions: fixed/sticky overlays, dialogs
// and containers whose naming hints at consent tooling. Returns ElementView
// JSON, outermost candidates only.
const scanJS = `(() => {
` + refHelperJS + `
	const namePattern = /cookie|consent|gdpr|privacy|cmp|banner|notice|didomi|onetrust|usercentrics|sp_message|cky|klaro|borlabs|cmplz/i;
	const vw = window.innerWidth, vh = window.innerHeight;

	const candidates = [];
	const seen = new Set();
	const consider = (el) => {
		if (seen.has(el)) return;
		for (const prev of seen) {
			if (prev.contains(el)) return;
		}
		seen.add(el);
		candidates.push(el);
	};

	for (const el of document.querySelectorAll('div, section, aside, footer, header, dialog, [role="dialog"], [role="alertdialog"]')) {
		if (!isVisible(el)) continue;
		const st = window.getComputedStyle(el);
		const positioned = st.position === 'fixed' || st.position === 'sticky';
		const role = (el.getAttribute('role') || '').toLowerCase();
		const named = namePattern.test(el.id + ' ' + el.className);
		if (!positioned && role !== 'dialog' && role !== 'alertdialog' && el.tagName !== 'DIALOG' && !named) continue;
		const r = el.getBoundingClientRect();
		if (r.width < 120 || r.height < 24) continue;
		consider(el);
	}

	const views = [];
	for (const el of candidates.slice(0, 12)) {
		const st = window.getComputedStyle(el);
		const r = el.getBoundingClientRect();
		const ancestors = [];
		let p = el.parentElement, depth = 0;
		while (p && p !== document.body) { depth++; p = p.parentElement; }
		p = el.parentElement;
		for (let i = 0; i < 3 && p && p !== document.documentElement; i++, p = p.parentElement) {
			const name = (p.id + ' ' + (typeof p.className === 'string' ? p.className : '')).trim();
			if (name) ancestors.push(name);
		}
		const actions = [];
		for (const a of el.querySelectorAll(actionSelector)) {
			actions.push(actionView(a));
			if (actions.length >= 40) break;
		}
		views.push({
			ref: refOf(el),
			tag: el.tagName.toLowerCase(),
			text: textOf(el).slice(0, 2000),
			attributes: attrsOf(el),
			geometry: { x: r.x, y: r.y, width: r.width, height: r.height },
			visible: true,
			position: {
				fixed: st.position === 'fixed',
				sticky: st.position === 'sticky',
				z_index: parseInt(st.zIndex, 10) || 0,
				viewport_width: vw,
				viewport_height: vh
			},
			ancestor_names: ancestors,
			nesting_depth: depth,
			actions: actions
		});
	}
	return views;
})()`

// findActionsJS collects clickable elements under a scope selector. The
// scope placeholder is substituted with a JSON-quoted selector; empty means
// the whole document.
const findActionsJS = `((scope) => {
` + refHelperJS + `
	let root = document;
	if (scope) {
		root = document.querySelector(scope);
		if (!root) return [];
	}
	const out = [];
	for (const el of root.querySelectorAll(actionSelector)) {
		out.push(actionView(el));
		if (out.length >= 120) break;
	}
	return out;
})(%s)`

// controlsJS collects preference-center inputs with their label text. Labels
// come from <label for>, wrapping labels, aria-label or the nearest row text.
const controlsJS = `((scope) => {
` + refHelperJS + `
	let root = document;
	if (scope) {
		root = document.querySelector(scope);
		if (!root) return [];
	}
	const labelFor = (el) => {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return textOf(l);
		}
		const wrap = el.closest('label');
		if (wrap) return textOf(wrap);
		const aria = el.getAttribute('aria-label');
		if (aria) return aria;
		const labelled = el.getAttribute('aria-labelledby');
		if (labelled) {
			const t = labelled.split(/\s+/).map(id => {
				const n = document.getElementById(id);
				return n ? textOf(n) : '';
			}).join(' ').trim();
			if (t) return t;
		}
		const row = el.closest('li, tr, fieldset, [class*="category"], [class*="purpose"], [class*="row"], div');
		return row ? textOf(row).slice(0, 200) : '';
	};
	const out = [];
	for (const el of root.querySelectorAll('input[type="checkbox"], [role="switch"], [role="checkbox"], select')) {
		if (!isVisible(el)) continue;
		const kind = actionKind(el);
		let checked = false;
		if (el.tagName === 'INPUT') checked = el.checked;
		else checked = el.getAttribute('aria-checked') === 'true';
		const options = [];
		if (el.tagName === 'SELECT') {
			for (const o of el.options) options.push(o.textContent.trim());
		}
		out.push({
			ref: refOf(el),
			kind: kind,
			label: labelFor(el),
			checked: checked,
			options: options,
			attributes: attrsOf(el)
		});
		if (out.length >= 60) break;
	}
	return out;
})(%s)`

// visibleJS and attachedJS are single-element probes.
const visibleJS = `((sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const st = window.getComputedStyle(el);
	if (st.display === 'none' || st.visibility === 'hidden' || parseFloat(st.opacity) === 0) return false;
	const r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
})(%s)`

const attachedJS = `(document.querySelector(%s) !== null)`

// setCheckedJS drives a checkbox or ARIA switch to the wanted state through
// a click, falling back to direct property assignment with synthetic events
// for controls that swallow clicks.
const setCheckedJS = `((sel, want) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const state = () => el.tagName === 'INPUT' ? el.checked : el.getAttribute('aria-checked') === 'true';
	if (state() === want) return true;
	el.click();
	if (state() === want) return true;
	if (el.tagName === 'INPUT') {
		el.checked = want;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	} else {
		el.setAttribute('aria-checked', want ? 'true' : 'false');
	}
	return state() === want;
})(%s, %t)`

// selectOptionJS picks the option whose text or value matches.
const selectOptionJS = `((sel, value) => {
	const el = document.querySelector(sel);
	if (!el || el.tagName !== 'SELECT') return false;
	for (const o of el.options) {
		if (o.value === value || o.textContent.trim() === value) {
			el.value = o.value;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
})(%s, %s)`

// pageContextJS summarizes the document for complexity estimation.
const pageContextJS = `(() => {
	const all = document.getElementsByTagName('*');
	let markers = 0;
	const limit = Math.min(all.length, 4000);
	for (let i = 0; i < limit; i++) {
		const el = all[i];
		for (const a of el.attributes) {
			if (a.name.startsWith('data-v-') || a.name.startsWith('data-react') || a.name.startsWith('ng-') || a.name.startsWith('data-emotion')) { markers++; break; }
		}
	}
	return {
		url: location.href,
		domain: location.hostname,
		element_count: all.length,
		iframe_count: document.getElementsByTagName('iframe').length,
		dynamic_marker_count: markers
	};
})()`

// mutationObserverJS installs a MutationObserver that reports added-subtree
// naming hints through the exposed binding. Installed on every new document.
const mutationObserverJS = `(() => {
	if (window.__cstObserver) return;
	const report = (hints) => {
		try { window.` + mutationBinding + `(JSON.stringify(hints)); } catch (e) {}
	};
	const observer = new MutationObserver((records) => {
		const hints = [];
		for (const rec of records) {
			for (const node of rec.addedNodes) {
				if (node.nodeType !== 1) continue;
				const name = (node.tagName + ' ' + (node.id || '') + ' ' + (typeof node.className === 'string' ? node.className : '')).trim();
				hints.push(name.slice(0, 120));
				if (hints.length >= 10) break;
			}
		}
		if (hints.length > 0) report(hints);
	});
	const start = () => observer.observe(document.documentElement, { childList: true, subtree: true });
	if (document.documentElement) start();
	else document.addEventListener('DOMContentLoaded', start);
	window.__cstObserver = observer;
})()`

const mutationBinding = "__cstMutation"
