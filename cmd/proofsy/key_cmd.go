package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

type keyOutput struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"publicKey"`
}

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var alg string
	var outPath string
	var pubOutPath string

	fs.StringVar(&alg, "alg", domain.DefaultSigningAlgorithm, "signing algorithm (es256, ed25519, rs256)")
	fs.StringVar(&outPath, "out", "", "private key PEM path (default stdout)")
	fs.StringVar(&pubOutPath, "pub-out", "", "public key PEM path")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	key, err := cryptoinfra.GenerateKey(alg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}
	privPEM, err := cryptoinfra.MarshalPrivateKeyPEM(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal private key: %v\n", err)
		return 1
	}
	if outPath != "" {
		if err := os.WriteFile(outPath, privPEM, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "write private key: %v\n", err)
			return 1
		}
	} else if _, err := os.Stdout.Write(privPEM); err != nil {
		fmt.Fprintf(os.Stderr, "write private key: %v\n", err)
		return 1
	}
	if pubOutPath != "" {
		pubPEM, err := key.PublicKeyPEM()
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal public key: %v\n", err)
			return 1
		}
		if err := os.WriteFile(pubOutPath, []byte(pubPEM), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write public key: %v\n", err)
			return 1
		}
	}
	return 0
}

func runKey(args []string) int {
	fs := flag.NewFlagSet("key", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var keyPath string
	var outPath string
	fs.StringVar(&keyPath, "key", "", "private key PEM path")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if keyPath == "" {
		fmt.Fprintln(os.Stderr, "key requires --key")
		return 1
	}
	key, err := readPrivateKey(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	pubPEM, err := key.PublicKeyPEM()
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal public key: %v\n", err)
		return 1
	}
	payload, err := json.MarshalIndent(keyOutput{Algorithm: key.Algorithm(), PublicKey: pubPEM}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, payload); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func readPrivateKey(path string) (*cryptoinfra.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := cryptoinfra.ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
