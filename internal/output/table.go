package output

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

type TableFormatter struct{}

func (t *TableFormatter) Format(w io.Writer, data Data) error {
	if data.SystemInfo != nil {
		fmt.Fprintln(w, "\nSystem")
		fmt.Fprintln(w, "------")
		sys := newTable(w)
		for _, f := range data.SystemInfo.Fields() {
			sys.Append([]string{f[0], f[1]})
		}
		sys.Render()
	}

	fmt.Fprintln(w, "\nBenchmark Results")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	table := newTable(w)
	table.SetHeader([]string{
		"Operation",
		"Bits",
		"Iterations",
		"Parallel",
		"Total Time",
		"Avg Time",
		"Min Time",
		"Max Time",
		"Ops/Sec",
		"Draws/Op",
		"CPU %",
		"Memory MB",
		"Errors",
	})

	for _, result := range data.Results {
		table.Append([]string{
			result.Operation,
			fmt.Sprintf("%d", result.Bits),
			fmt.Sprintf("%d", result.Iterations),
			fmt.Sprintf("%d", result.Parallel),
			formatDuration(result.TotalTime),
			formatDuration(result.AverageTime),
			formatDuration(result.MinTime),
			formatDuration(result.MaxTime),
			fmt.Sprintf("%.2f", result.KeysPerSecond),
			fmt.Sprintf("%.1f", result.AverageAttempts),
			fmt.Sprintf("%.1f", result.CPUUsage),
			fmt.Sprintf("%.2f", float64(result.MemoryUsed)/(1024*1024)),
			fmt.Sprintf("%d", result.Errors),
		})
	}

	table.Render()

	fmt.Fprintln(w, "\nSummary")
	fmt.Fprintln(w, "-------")

	s := summarize(data)
	if len(data.Results) > 0 {
		fmt.Fprintf(w, "Seed: %d\n", data.Results[0].Seed)
	}
	fmt.Fprintf(w, "Total operations: %d\n", s.TotalKeys)
	fmt.Fprintf(w, "Total time: %s\n", formatDuration(s.TotalTime))
	if s.TotalTime > 0 {
		fmt.Fprintf(w, "Overall throughput: %.2f ops/sec\n", s.Throughput)
	}

	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	} else if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	} else if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.2fm", d.Minutes())
}
