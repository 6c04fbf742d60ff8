package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupted commands already printed whatever they had to say.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		os.Exit(1)
	}
}
