package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"planes_maxsum/internal/domain"
	"planes_maxsum/internal/sim"
	sqlitestore "planes_maxsum/internal/store/sqlite"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

func printError(w io.Writer, err error) {
	red.Fprintf(w, "error: %v\n", err)
}

func printAssignments(w io.Writer, runID string, ticks int64, assignments []domain.Assignment, taskCount int) {
	cyan.Fprintf(w, "run %s after %d ticks\n", runID, ticks)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPLANE\tCOST")
	for _, a := range assignments {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\n", a.TaskID, a.PlaneID, a.Cost)
	}
	_ = tw.Flush()
	if missing := taskCount - len(assignments); missing > 0 {
		yellow.Fprintf(w, "%d task(s) still in transit\n", missing)
	}
	green.Fprintf(w, "total cost %.3f\n", sim.TotalCost(assignments))
}

func printRun(w io.Writer, run sqlitestore.Run) {
	cyan.Fprintf(w, "run %s\n", run.ID)
	fmt.Fprintf(w, "  planes=%d tasks=%d start_every=%d iterations=%d\n", run.Planes, run.Tasks, run.StartEvery, run.Iterations)
	if run.FinishedAt == nil {
		yellow.Fprintln(w, "  unfinished")
		return
	}
	fmt.Fprintf(w, "  ticks=%d finished=%s\n", run.Ticks, run.FinishedAt.Format("2006-01-02T15:04:05Z"))
	if run.TotalCost != nil {
		green.Fprintf(w, "  total cost %.3f\n", *run.TotalCost)
	}
}

func printDecisions(w io.Writer, entries []domain.DecisionLog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICK\tPLANE\tTASK\tACTION\tREASON\tPAYLOAD")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Tick, e.PlaneID, e.TaskID, e.Action, e.Reason, e.Payload)
	}
	_ = tw.Flush()
}
