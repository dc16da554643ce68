package benchmark

import (
	"context"
	"time"

	"github.com/user/lcgrsa/internal/prime"
)

type Config struct {
	Operations   []string `json:"operations"`
	Iterations   int      `json:"iterations"`
	Parallel     int      `json:"parallel"`
	Seed         uint64   `json:"seed"`
	Rounds       int      `json:"rounds"`
	MaxAttempts  int      `json:"max_attempts"`
	Provider     string   `json:"provider"`
	ShowProgress bool     `json:"show_progress"`
	Timeout      int      `json:"timeout"`
	Verbose      bool     `json:"verbose"`
}

type Result struct {
	Operation       string        `json:"operation"`
	Iterations      int           `json:"iterations"`
	Parallel        int           `json:"parallel"`
	Seed            uint64        `json:"seed"`
	Bits            int           `json:"bits"`
	TotalTime       time.Duration `json:"total_time"`
	AverageTime     time.Duration `json:"average_time"`
	MinTime         time.Duration `json:"min_time"`
	MaxTime         time.Duration `json:"max_time"`
	StdDev          time.Duration `json:"std_dev"`
	KeysPerSecond   float64       `json:"keys_per_second"`
	AverageAttempts float64       `json:"average_attempts"`
	CPUUsage        float64       `json:"cpu_usage"`
	MemoryUsed      uint64        `json:"memory_used"`
	Errors          int           `json:"errors"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Operation is one timed unit of work driven by a prime generator. Run
// returns the bit length of what it produced.
type Operation interface {
	Name() string
	Run(ctx context.Context, g *prime.Generator) (int, error)
}
