package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/lcgrsa/internal/config"
)

var (
	cfgFile string
	verbose bool

	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lcgrsa",
	Short: "Textbook RSA over primes drawn from a deterministic LCG",
	Long: `lcgrsa derives RSA key pairs from primes found in the output of an
MMIX linear congruential generator. The same seed always yields the same
key pair.

Keys are exported as PEM (SubjectPublicKeyInfo and PKCS#8) and can be used
to encrypt and decrypt short messages with raw modular exponentiation.
This is a teaching tool: there is no padding and the primes are small.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		return err
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: $HOME/.lcgrsa.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.Uint64("seed", 0, "LCG seed (0 seeds from the clock)")
	flags.Int("rounds", 0, "Miller-Rabin rounds per candidate")
	flags.Int("max-attempts", 0, "Candidates to draw per prime before giving up (0 for no bound)")
	flags.String("provider", "", "Key encoder (asn1, x509)")

	bindFlags(flags, map[string]string{
		"seed":         "seed",
		"rounds":       "rounds",
		"max_attempts": "max-attempts",
		"provider":     "provider",
	})

	rootCmd.AddCommand(generateCmd, encryptCmd, decryptCmd, inspectCmd, benchCmd, selftestCmd, serveCmd)
}

// bindFlags binds config keys to the named flags so that a flag given on
// the command line overrides the config file and environment.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
