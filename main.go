package main

import (
	"os"

	"github.com/surajcodesml/a2a/cmd/x402relay"
)

func main() {
	if err := x402relay.Execute(); err != nil {
		os.Exit(1)
	}
}
