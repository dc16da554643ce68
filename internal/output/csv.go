package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/user/lcgrsa/pkg/sysinfo"
)

type CSVFormatter struct{}

func (c *CSVFormatter) Format(w io.Writer, data Data) error {
	writer := csv.NewWriter(w)

	header := []string{
		"Timestamp",
		"Operation",
		"Seed",
		"Bits",
		"Iterations",
		"Parallel",
		"TotalTime(ms)",
		"AverageTime(ms)",
		"MinTime(ms)",
		"MaxTime(ms)",
		"StdDev(ms)",
		"OpsPerSecond",
		"AverageDraws",
		"CPUUsage(%)",
		"MemoryUsed(MB)",
		"Errors",
		"OS",
		"Architecture",
		"CPUModel",
		"CPUCores",
		"TotalMemory(GB)",
	}

	if err := writer.Write(header); err != nil {
		return err
	}

	sys := data.SystemInfo
	if sys == nil {
		sys = &sysinfo.SystemInfo{}
	}

	for _, result := range data.Results {
		row := []string{
			result.CompletedAt.Format(time.RFC3339),
			result.Operation,
			fmt.Sprintf("%d", result.Seed),
			fmt.Sprintf("%d", result.Bits),
			fmt.Sprintf("%d", result.Iterations),
			fmt.Sprintf("%d", result.Parallel),
			millis(result.TotalTime),
			millis(result.AverageTime),
			millis(result.MinTime),
			millis(result.MaxTime),
			millis(result.StdDev),
			fmt.Sprintf("%.2f", result.KeysPerSecond),
			fmt.Sprintf("%.2f", result.AverageAttempts),
			fmt.Sprintf("%.2f", result.CPUUsage),
			fmt.Sprintf("%.2f", float64(result.MemoryUsed)/(1024*1024)),
			fmt.Sprintf("%d", result.Errors),
			sys.OS,
			sys.Architecture,
			sys.CPUModel,
			fmt.Sprintf("%d", sys.CPUCores),
			fmt.Sprintf("%.2f", float64(sys.TotalMemory)/(1024*1024*1024)),
		}

		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
