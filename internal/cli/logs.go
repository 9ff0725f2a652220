package cli

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
)

var logsFlags struct {
	follow     bool
	split      bool
	filter     string
	containers []string
	tail       int
	server     string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show lab container logs",
	Long: `Show the logs of the lab containers merged into one timeline, or split
per container with --split.

Lines are ordered by their timestamp; lines without one are listed first.
--filter matches container names, --container restricts to the given
containers, and both apply together.`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	f := logsCmd.Flags()
	f.BoolVarP(&logsFlags.follow, "follow", "f", false, "Keep polling and print new lines")
	f.BoolVarP(&logsFlags.split, "split", "s", false, "One panel per container")
	f.StringVar(&logsFlags.filter, "filter", "", "Only containers whose name contains this text")
	f.StringSliceVarP(&logsFlags.containers, "container", "c", nil, "Only these containers (repeatable)")
	f.IntVarP(&logsFlags.tail, "tail", "t", 0, "Lines requested per container (default from settings)")
	f.StringVar(&logsFlags.server, "server-filter", "", "Filter passed to the backend")
}

func runLogs(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tail := logsFlags.tail
	if tail <= 0 {
		tail = a.settings.Logs.Tail
	}
	filter := logview.Filter{Text: logsFlags.filter, Include: logsFlags.containers}
	agg := logview.New(logview.WithLimits(a.settings.Logs.UnifiedLimit, a.settings.Logs.SplitLimit))

	sched := a.newScheduler(ctx)
	defer sched.Close()

	p := &logPrinter{w: out, agg: agg, filter: filter}
	follower := logview.NewFollower(a.client, agg, sched,
		logview.WithTail(tail),
		logview.WithPeriod(a.settings.Poll.Logs),
		logview.WithServerFilter(logsFlags.server),
		logview.WithFollowerLogger(a.logger),
		logview.OnUpdate(p.printNew),
	)

	if !logsFlags.follow {
		if err := follower.Fetch(ctx); err != nil {
			return err
		}
		if logsFlags.split {
			renderSplit(out, agg.Split(filter), agg)
		} else {
			renderUnified(out, agg.Unified(filter))
		}
		return nil
	}

	if err := follower.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	follower.Stop()
	return nil
}

func renderUnified(w io.Writer, lines []logview.Line) {
	if len(lines) == 0 {
		fmt.Fprintln(w, paint(styleHint, "No logs."))
		return
	}
	for _, l := range lines {
		fmt.Fprintln(w, formatLine(l))
	}
}

func renderSplit(w io.Writer, panels []logview.Panel, agg *logview.Aggregator) {
	if len(panels) == 0 {
		fmt.Fprintln(w, paint(styleHint, "No logs."))
		return
	}
	for i, p := range panels {
		if i > 0 {
			fmt.Fprintln(w)
		}
		title := containerPrefix(p.Name)
		if info, ok := agg.Container(p.Name); ok && info.Status != "" {
			title += " " + paint(styleHint, info.Status)
		}
		fmt.Fprintln(w, title)
		if len(p.Lines) == 0 {
			fmt.Fprintln(w, paint(styleHint, "  (empty)"))
		}
		for _, l := range p.Lines {
			fmt.Fprintln(w, "  "+formatClock(l)+l.Message)
		}
	}
}

func formatLine(l logview.Line) string {
	return formatClock(l) + containerPrefix(l.Container) + " " + l.Message
}

func formatClock(l logview.Line) string {
	if !l.HasTime() {
		return ""
	}
	return paint(styleHint, l.Clock) + " "
}

// logPrinter prints unified lines that were not printed before. The backend
// returns whole tail windows, so each container's new lines are found by
// aligning its window with the previous one. Repeated identical lines are
// kept; a window made only of one repeated line that has not grown cannot be
// told apart from an unchanged one.
type logPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	agg    *logview.Aggregator
	filter logview.Filter
	prev   map[string][]string
}

func (p *logPrinter) printNew() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prev == nil {
		p.prev = make(map[string][]string)
	}
	fresh := make(map[string]int)
	next := make(map[string][]string)
	for _, name := range p.agg.Visible(p.filter) {
		var raw []string
		for _, l := range p.agg.Single(name, 0) {
			raw = append(raw, l.Raw)
		}
		next[name] = raw
		for _, r := range raw[windowOverlap(p.prev[name], raw):] {
			fresh[name+"\x00"+r]++
		}
	}
	p.prev = next

	for _, l := range p.agg.Unified(p.filter) {
		key := l.Container + "\x00" + l.Raw
		if fresh[key] == 0 {
			continue
		}
		fresh[key]--
		fmt.Fprintln(p.w, formatLine(l))
	}
}

// windowOverlap returns the length of the longest suffix of prev that is a
// prefix of cur.
func windowOverlap(prev, cur []string) int {
	for k := min(len(prev), len(cur)); k > 0; k-- {
		if slices.Equal(prev[len(prev)-k:], cur[:k]) {
			return k
		}
	}
	return 0
}
