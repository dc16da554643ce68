package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/user/lcgrsa/internal/benchmark"
	"github.com/user/lcgrsa/pkg/sysinfo"
)

// Data is everything a bench run reports. SystemInfo may be nil.
type Data struct {
	SystemInfo *sysinfo.SystemInfo
	Results    []benchmark.Result
	Config     benchmark.Config
}

// Formatter renders benchmark results.
type Formatter interface {
	Format(w io.Writer, data Data) error
}

// Formats lists the names NewFormatter accepts.
var Formats = []string{"table", "json", "csv"}

func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "table", "":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}
