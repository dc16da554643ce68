package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/lcgrsa/internal/benchmark"
	"github.com/user/lcgrsa/internal/output"
	"github.com/user/lcgrsa/pkg/sysinfo"
)

var (
	operations   []string
	iterations   int
	parallel     int
	outputFormat string
	outputFile   string
	showProgress bool
	timeout      int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark prime search, key derivation and PEM export",
	Long: `bench times each operation over iterations x parallel runs. Every
worker draws from its own generator seeded with seed+worker, so a run with a
fixed --seed is reproducible.`,
	RunE: runBenchmark,
}

func init() {
	benchCmd.Flags().StringSliceVarP(&operations, "operations", "a", benchmark.DefaultOperations, "Operations to benchmark (prime, keygen, roundtrip, export)")
	benchCmd.Flags().IntVarP(&iterations, "iterations", "i", 10, "Number of iterations per worker")
	benchCmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "Number of parallel workers")
	benchCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format ("+strings.Join(output.Formats, ", ")+")")
	benchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	benchCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar")
	benchCmd.Flags().IntVarP(&timeout, "timeout", "t", 300, "Timeout in seconds per operation")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if verbose {
		fmt.Println("lcgrsa - LCG RSA Benchmark")
		fmt.Println("==========================")
		fmt.Println()
	}

	sysInfo, err := sysinfo.Collect(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to collect system info: %w", err)
	}

	if verbose {
		fmt.Println("System Information:")
		for _, f := range sysInfo.Fields() {
			fmt.Printf("  %s: %s\n", f[0], f[1])
		}
		fmt.Println()
	}

	config := benchmark.Config{
		Operations:   operations,
		Iterations:   iterations,
		Parallel:     parallel,
		Seed:         resolveSeed(cfg.Seed),
		Rounds:       cfg.Rounds,
		MaxAttempts:  cfg.MaxAttempts,
		Provider:     cfg.Provider,
		ShowProgress: showProgress,
		Timeout:      timeout,
		Verbose:      verbose,
	}

	runner, err := benchmark.NewRunner(config)
	if err != nil {
		return err
	}
	results, err := runner.Run()
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	formatter, err := output.NewFormatter(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	outputData := output.Data{
		SystemInfo: sysInfo,
		Results:    results,
		Config:     config,
	}

	writer := os.Stdout
	if outputFile != "" {
		writer, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer writer.Close()
	}

	if err := formatter.Format(writer, outputData); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}
