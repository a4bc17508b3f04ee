// Package resource tracks the renderer contexts (tabs) and timers opened
// during a crawl session so that all of them can be released on every
// exit path: success, user stop or failure.
package resource
