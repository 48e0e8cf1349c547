package crawler

// DefaultLinkScript is evaluated in the page context after a successful load.
// It returns the absolute href of every anchor in document order.
const DefaultLinkScript = `(() => {
	const out = [];
	for (const a of document.querySelectorAll('a[href]')) {
		const href = a.href;
		if (typeof href === 'string' && href !== '') {
			out.push(href);
		}
	}
	return out;
})()`
