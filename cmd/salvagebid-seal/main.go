// Command salvagebid-seal encrypts a secret with a password and writes the
// sealed JSON blob to a file. The server opens it at startup via
// notify.gateway_secret_file, so the clear secret never sits in config.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/salvagehub/salvagebid/internal/crypto"
)

func main() {
	out := flag.String("out", "gateway_secret.json", "output path for the sealed secret")
	flag.Parse()

	secret := os.Getenv("SALVAGEBID_SEAL_SECRET")
	password := os.Getenv("SALVAGEBID_SEAL_PASSWORD")
	if secret == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: SALVAGEBID_SEAL_SECRET=... SALVAGEBID_SEAL_PASSWORD=... salvagebid-seal [-out path]")
		os.Exit(2)
	}

	blob, err := crypto.SealSecret(secret, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seal: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "seal: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("sealed secret written to %s\n", *out)
}
