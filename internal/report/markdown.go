package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitesnap/internal/model"
)

// MarkdownWriter outputs summaries as Markdown for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(summary *model.SessionSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCrawl(md, summary)
	w.writeArchives(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.SessionSummary) {
	s := summary.Session
	md.H1("sitesnap Session Report")
	md.PlainText("")

	premium := "no"
	if s.Premium {
		premium = "yes"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + s.ID + "`"},
			{"Seed", "`" + s.SeedURL + "`"},
			{"Started", formatTime(s.StartedAt)},
			{"Duration", summary.Duration.Round(time.Millisecond).String()},
			{"Premium", premium},
			{"Status", statusText(s)},
		},
	})
	md.PlainText("")

	switch s.Status {
	case model.StatusCompleted:
		md.Tip("Every page was archived and the cache was cleared.")
	case model.StatusStopped:
		md.Note("The session was stopped. Run `sitesnap export` to archive what was cached.")
	case model.StatusFailed:
		md.Cautionf("The session failed: %s", s.LastError)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, summary *model.SessionSummary) {
	md.H2("Crawl")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages processed", strconv.Itoa(summary.Pages)},
			{"Pages cached", strconv.Itoa(summary.CachedPages)},
			{"Assets", strconv.Itoa(summary.Assets)},
			{"Failed", strconv.Itoa(len(summary.Failed))},
		},
	})
	md.PlainText("")

	if summary.CachedPages+len(summary.Failed) == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)
	if summary.CachedPages > 0 {
		chart.LabelAndIntValue("Cached", uint64(summary.CachedPages))
	}
	if len(summary.Failed) > 0 {
		chart.LabelAndIntValue("Failed", uint64(len(summary.Failed)))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeArchives(md *markdown.Markdown, summary *model.SessionSummary) {
	md.H2("Archives")
	md.PlainText("")
	if len(summary.Archives) == 0 {
		md.PlainText("No archives were delivered.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Archives))
	for i, a := range summary.Archives {
		rows[i] = []string{a.Name, strconv.Itoa(a.Files), strconv.Itoa(a.Bytes), a.Location}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Archive", "Files", "Bytes", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.SessionSummary) {
	if len(summary.Failed) == 0 {
		return
	}
	md.H2("Failed Pages")
	md.PlainText("")
	md.BulletList(summary.Failed...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitesnap](https://github.com/nao1215/sitesnap)*")
}

func statusText(s model.Session) string {
	switch s.Status {
	case model.StatusCompleted:
		return "✅ Completed"
	case model.StatusStopped:
		return "⏹️ Stopped"
	case model.StatusFailed:
		return "❌ Failed"
	default:
		return s.Status.String()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
