package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	// Interrupted commands exit non-zero without repeating the cancellation.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
	}
	os.Exit(1)
}
