package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Generate a key pair, then encrypt and decrypt a message with it",
	RunE:  runSelftest,
}

func init() {
	selftestCmd.Flags().StringVarP(&message, "message", "m", "", "Message to encrypt (prompted for when omitted)")
}

func runSelftest(cmd *cobra.Command, args []string) error {
	fmt.Println("# ---- RSA ---- #")

	seed := resolveSeed(cfg.Seed)
	keys, err := rsakey.Generate(cmd.Context(), prime.NewGenerator(lcg.New(seed), cfg.PrimeOptions()...))
	if err != nil {
		return err
	}
	bridge, err := cfg.NewBridge()
	if err != nil {
		return err
	}
	pair, err := bridge.Export(keys)
	if err != nil {
		return err
	}

	fmt.Printf("RSA keys (seed %d, %d-bit modulus):\n", seed, keys.Bits())
	fmt.Printf("%s\n\n%s\n\n", pair.PublicPEM, pair.PrivatePEM)

	if !cmd.Flags().Changed("message") {
		if message, err = promptLine("Enter the message to encrypt (RSA): "); err != nil {
			return err
		}
	}
	fmt.Println("Original message:", message)

	if !rsakey.Fits([]byte(message), keys.PublicKey) {
		fmt.Println("Warning: message is not smaller than the modulus and will not survive the round trip")
	}

	c, err := rsakey.EncryptString(message, keys.PublicKey)
	if err != nil {
		return err
	}
	fmt.Println("Ciphertext (base64):", rsakey.CiphertextToBase64(c))

	decrypted, err := rsakey.DecryptString(c, keys.PrivateKey)
	if err != nil {
		return err
	}
	fmt.Println("Decrypted message:", decrypted)
	fmt.Println("# ---- RSA ---- #")
	return nil
}
