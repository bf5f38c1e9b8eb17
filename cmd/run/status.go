package run

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/buger/goterm"

	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/monitor"
)

// maxPrintedFiles is the number of updated files that are listed when a
// batch of transfers completes.
const maxPrintedFiles = 5

// statusPrinter prints a line for every status change and every transfer
// update. It implements monitor.StatusListener and monitor.ProgressListener.
type statusPrinter struct {
	lock sync.Mutex
	out  io.Writer

	// The overall status is recomputed after every folder change, so only
	// print it when it's different.
	printedOverall bool
	overall        monitor.Status
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out}
}

func (p *statusPrinter) FolderStatusChanged(folder string, status monitor.Status) {
	p.printf("%s: %s\n", folder, statusString(status))
}

func (p *statusPrinter) OverallStatusChanged(status monitor.Status) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.printedOverall && p.overall == status {
		return
	}
	p.printedOverall = true
	p.overall = status
	fmt.Fprintf(p.out, "Overall: %s\n", statusString(status))
}

func (p *statusPrinter) ProgressUpdated(folder string, finished, queued int) {
	p.printf("%s: transferred %d of %d files\n", folder, finished, queued)
}

func (p *statusPrinter) FilesUpdated(folder string, paths []string) {
	p.printf("%s: updated %s\n", folder,
		strings.Join(truncateSlice(paths, maxPrintedFiles), ", "))
}

// HandleEvent prints the daemon's connections to the grid.
func (p *statusPrinter) HandleEvent(ev events.Event) {
	cc, ok := ev.(events.ConnectionChanged)
	if !ok {
		return
	}

	color := goterm.GREEN
	if !cc.Happy {
		color = goterm.YELLOW
	}
	p.printf("Grid: %s\n", goterm.Color(
		fmt.Sprintf("connected to %d of %d storage nodes", cc.Connected, cc.Desired),
		color))
}

func (p *statusPrinter) printf(format string, args ...interface{}) {
	p.lock.Lock()
	defer p.lock.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func statusString(status monitor.Status) string {
	color := goterm.BLACK
	switch status {
	case monitor.StatusSyncing:
		color = goterm.YELLOW
	case monitor.StatusUpToDate:
		color = goterm.GREEN
	case monitor.StatusError:
		color = goterm.RED
	case monitor.StatusStoredRemotely:
		color = goterm.BLUE
	}
	return goterm.Color(status.String(), color)
}

// truncateSlice truncates the given slice of strings to the given length. If
// the slice is longer than `length`, a message is appended saying how many
// more items are in the slice.
func truncateSlice(slc []string, length int) (truncated []string) {
	if len(slc) <= length {
		return slc
	}
	msg := fmt.Sprintf("... %d more ...", len(slc)-length)
	return append(slc[:length:length], msg)
}
