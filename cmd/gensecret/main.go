// Prints a random hex encoded key to be used as SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Shortest key the token codec accepts
const minKeyBytes = 32

func main() {
	size := pflag.IntP("bytes", "n", minKeyBytes, "Key length in bytes, 32 at least")
	pflag.Parse()

	key, err := generate(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}

func generate(size int) (string, error) {
	if size < minKeyBytes {
		return "", fmt.Errorf("key must be %d bytes at least, got %d", minKeyBytes, size)
	}

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
