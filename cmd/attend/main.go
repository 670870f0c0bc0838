// Command attend is the terminal front end of the attendance tracker: scan
// payloads or images, manage the registry, browse the ledger and print QR
// codes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"qrattend/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, config.New(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
