package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/rsakey"
)

// promptLine reads one line from stdin. On a terminal it shows prompt and
// supports line editing.
func promptLine(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(fd, state)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, prompt)
	return t.ReadLine()
}

func readFile(path, what string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--%s is required", what)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}
	return string(data), nil
}

func loadPublicKey(bridge *interchange.Bridge, path string) (rsakey.PublicKey, error) {
	pem, err := readFile(path, "public-key")
	if err != nil {
		return rsakey.PublicKey{}, err
	}
	return bridge.ImportPublic(pem)
}

func loadKeyPair(bridge *interchange.Bridge, publicPath, privatePath string) (*rsakey.Keys, interchange.PEMPair, error) {
	var pair interchange.PEMPair
	var err error

	if pair.PublicPEM, err = readFile(publicPath, "public-key"); err != nil {
		return nil, pair, err
	}
	if pair.PrivatePEM, err = readFile(privatePath, "private-key"); err != nil {
		return nil, pair, err
	}

	keys, err := bridge.Import(pair.PublicPEM, pair.PrivatePEM)
	if err != nil {
		return nil, pair, err
	}
	return keys, pair, nil
}

func resolveSeed(seed uint64) uint64 {
	if seed == 0 {
		return uint64(time.Now().UnixMilli())
	}
	return seed
}
