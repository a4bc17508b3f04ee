// Package report renders session output.
//
// Writers turn a model.SessionSummary into a Markdown or JSON document;
// New picks one by format name. ConsoleObserver prints progress events
// to a terminal as they happen.
package report
