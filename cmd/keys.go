package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/output"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
	"github.com/user/lcgrsa/internal/storage"
)

var (
	outDir string

	publicKeyFile  string
	privateKeyFile string
	message        string
	ciphertext     string
	inspectFormat  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Derive a key pair from a seed and print it",
	RunE:  runGenerate,
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a message with a public key",
	RunE:  runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a base64 ciphertext with a key pair",
	RunE:  runDecrypt,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the components of a key pair and check that they agree",
	RunE:  runInspect,
}

func init() {
	generateCmd.Flags().StringVar(&outDir, "out-dir", "", "Also write the PEM files under this directory")
	generateCmd.Flags().StringP("format", "f", "table", "Output format (table, json, pem)")
	bindFlags(generateCmd.Flags(), map[string]string{"format": "format"})

	encryptCmd.Flags().StringVar(&publicKeyFile, "public-key", "", "Public key PEM file")
	encryptCmd.Flags().StringVarP(&message, "message", "m", "", "Message to encrypt (prompted for when omitted)")

	decryptCmd.Flags().StringVar(&publicKeyFile, "public-key", "", "Public key PEM file")
	decryptCmd.Flags().StringVar(&privateKeyFile, "private-key", "", "Private key PEM file")
	decryptCmd.Flags().StringVarP(&ciphertext, "ciphertext", "c", "", "Base64 ciphertext (prompted for when omitted)")

	inspectCmd.Flags().StringVar(&publicKeyFile, "public-key", "", "Public key PEM file")
	inspectCmd.Flags().StringVar(&privateKeyFile, "private-key", "", "Private key PEM file")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format (table, json)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	seed := resolveSeed(cfg.Seed)

	opts := cfg.PrimeOptions()
	if verbose {
		opts = append(opts, prime.WithProgress(func(a prime.Attempt) {
			if a.Accepted {
				log.Printf("Accepted prime %s after %d draws", a.Candidate, a.Number)
			}
		}))
	}

	g := prime.NewGenerator(lcg.New(seed), opts...)
	keys, err := rsakey.Generate(cmd.Context(), g)
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}

	bridge, err := cfg.NewBridge()
	if err != nil {
		return err
	}
	pair, err := bridge.Export(keys)
	if err != nil {
		return err
	}

	if outDir != "" {
		fs, err := storage.NewFileStorage(outDir)
		if err != nil {
			return err
		}
		info, err := fs.SavePair(storage.NewStoredKey(pair, seed, keys.Bits(), ""))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\nWrote %s\n", info.PublicPath, info.PrivatePath)
	}

	report, err := output.NewKeyReport(keys, pair, output.ReportOptions{
		Seed:     seed,
		Provider: cfg.Provider,
		Oracle:   g.Oracle(),
		Rounds:   g.Rounds(),
	})
	if err != nil {
		return err
	}
	return output.WriteKeyReport(os.Stdout, cfg.Format, report)
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	bridge, err := cfg.NewBridge()
	if err != nil {
		return err
	}
	pub, err := loadPublicKey(bridge, publicKeyFile)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("message") {
		if message, err = promptLine("Enter the message to encrypt: "); err != nil {
			return err
		}
	}

	msg := []byte(message)
	c, err := rsakey.Encrypt(msg, pub)
	if err != nil {
		return err
	}
	if !rsakey.Fits(msg, pub) {
		fmt.Fprintf(os.Stderr, "Warning: message is not smaller than the %d-bit modulus and will not decrypt to the original\n", pub.N.BitLen())
	}

	fmt.Println(rsakey.CiphertextToBase64(c))
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	bridge, err := cfg.NewBridge()
	if err != nil {
		return err
	}
	keys, _, err := loadKeyPair(bridge, publicKeyFile, privateKeyFile)
	if err != nil {
		return err
	}
	defer keys.Wipe()

	if ciphertext == "" {
		if ciphertext, err = promptLine("Enter the ciphertext (base64): "); err != nil {
			return err
		}
	}

	c, err := rsakey.CiphertextFromBase64(ciphertext)
	if err != nil {
		return err
	}
	msg, err := rsakey.DecryptString(c, keys.PrivateKey)
	if err != nil {
		return err
	}

	fmt.Println(msg)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	bridge, err := cfg.NewBridge()
	if err != nil {
		return err
	}
	keys, pair, err := loadKeyPair(bridge, publicKeyFile, privateKeyFile)
	if err != nil {
		return err
	}

	report, err := output.NewKeyReport(keys, pair, output.ReportOptions{
		Provider: cfg.Provider,
		Rounds:   cfg.Rounds,
	})
	if err != nil {
		return err
	}
	// the PEM text is what the user passed in
	report.PublicPEM, report.PrivatePEM = "", ""

	if err := output.WriteKeyReport(os.Stdout, inspectFormat, report); err != nil {
		return err
	}
	if !output.AllPassed(report.Checks) {
		return fmt.Errorf("key pair failed consistency checks")
	}
	return nil
}
