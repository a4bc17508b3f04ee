package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/nao1215/sitesnap/internal/model"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorDim     = color.New(color.Faint).SprintFunc()
)

const (
	prefixDone     = "✓"
	prefixWarn     = "⚠"
	prefixError    = "✗"
	prefixVisiting = "→"
	prefixInfo     = "ℹ"
)

// ConsoleObserver prints progress events as colored lines.
type ConsoleObserver struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewConsoleObserver creates a ConsoleObserver. Unless verbose, per-URL
// queue and fetch events are not printed.
func NewConsoleObserver(out io.Writer, verbose bool) *ConsoleObserver {
	return &ConsoleObserver{out: out, verbose: verbose}
}

// Observe prints event.
func (o *ConsoleObserver) Observe(event model.ProgressEvent) {
	line, ok := o.format(event)
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, line)
}

func (o *ConsoleObserver) format(event model.ProgressEvent) (string, bool) {
	msg := event.Message
	switch {
	case strings.HasPrefix(msg, "Fetching: "), strings.HasPrefix(msg, "Using cached data"):
		if !o.verbose {
			return "", false
		}
		return fmt.Sprintf("%s %s", colorInfo(prefixVisiting), colorDim(msg)), true
	case strings.HasPrefix(msg, "Queued: ") && !strings.Contains(msg, "Processed"):
		if !o.verbose {
			return "", false
		}
		return colorDim(msg), true
	case strings.HasPrefix(msg, "Failed"):
		return fmt.Sprintf("%s %s", colorError(prefixError), msg), true
	case strings.HasPrefix(msg, "Nothing to stop"), strings.HasPrefix(msg, "Already running"),
		strings.HasPrefix(msg, "Stopping"), msg == "Stopped":
		return fmt.Sprintf("%s %s", colorWarn(prefixWarn), msg), true
	case strings.HasPrefix(msg, "Completed"), strings.HasPrefix(msg, "Delivered"):
		return fmt.Sprintf("%s %s", colorSuccess(prefixDone), msg), true
	default:
		return fmt.Sprintf("%s %s %s", colorInfo(prefixInfo), msg,
			colorDim(fmt.Sprintf("[queued %d, processed %d, assets %d]", event.Queued, event.Processed, event.AssetsFound))), true
	}
}
