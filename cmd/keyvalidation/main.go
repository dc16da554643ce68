package main

import (
	"fmt"
	"os"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/output"
	"github.com/user/lcgrsa/internal/prime"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <public.pem> <private.pem>\n", os.Args[0])
		os.Exit(1)
	}

	publicFile, privateFile := os.Args[1], os.Args[2]

	publicPEM, err := os.ReadFile(publicFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(1)
	}
	privatePEM, err := os.ReadFile(privateFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading private key: %v\n", err)
		os.Exit(1)
	}

	// Import checks that the CRT values match p, q and d and that both halves
	// share n and e.
	keys, err := interchange.NewBridge(nil).Import(string(publicPEM), string(privatePEM))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing key pair: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Public key:  %s\n", publicFile)
	fmt.Printf("Private key: %s\n", privateFile)
	fmt.Printf("Key size: %d bits\n", keys.Bits())
	fmt.Printf("Public exponent: %s\n", keys.PublicKey.E)
	fmt.Println("✓ CRT parameters match p, q and d")

	fmt.Println("\nValidating mathematical properties...")

	failed := 0
	for _, check := range output.CheckKeys(keys, prime.MillerRabin{}, prime.DefaultRounds) {
		if check.OK {
			fmt.Printf("✓ %s\n", check.Name)
			continue
		}
		failed++
		if check.Detail != "" {
			fmt.Printf("✗ %s: %s\n", check.Name, check.Detail)
		} else {
			fmt.Printf("✗ %s\n", check.Name)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d checks failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nKey validation complete!")
}
