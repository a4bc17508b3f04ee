// Package render provides crawler.Renderer implementations.
//
// HTTPRenderer fetches a page with a plain HTTP GET and parses the
// response. It is fast and needs no browser, but sees only server-side
// markup. ChromeRenderer drives headless Chrome through the DevTools
// protocol, waits for document.readyState to become "complete" and
// returns the live DOM, so client-side rendered sites are archived as the
// visitor sees them.
package render
