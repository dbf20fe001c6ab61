package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:])
	case "key":
		return runKey(args[2:])
	case "sign":
		return runSign(args[2:])
	case "verify":
		return runVerify(args[2:])
	case "inspect":
		return runInspect(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "proofsy"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s keygen [--alg es256|ed25519|rs256] [--out <key.pem>] [--pub-out <pub.pem>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s key --key <key.pem>\n", name)
	fmt.Fprintf(os.Stderr, "  %s sign --in <manifest.json> --key <key.pem> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --in <artifact.json> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s inspect --in <artifact.json> [--out <file>]\n", name)
}
