package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"qrattend/internal/crypto"
	"qrattend/internal/utils"
)

// Writes a new hex master key used to encrypt the data files when
// storage.encrypt is enabled. The target defaults to <data dir>/master.key.
func main() {
	keyFile := filepath.Join(utils.DefaultDataDir(), "master.key")
	if len(os.Args) > 1 {
		keyFile = os.Args[1]
	}
	if _, err := os.Stat(keyFile); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Refusing to overwrite.\n", keyFile)
		os.Exit(1)
	}
	key, err := crypto.GenerateMasterKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating random key: %v\n", err)
		os.Exit(1)
	}
	if err := utils.EnsureDir(filepath.Dir(keyFile)); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", filepath.Dir(keyFile), err)
		os.Exit(1)
	}
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", keyFile, err)
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", keyFile)
}
