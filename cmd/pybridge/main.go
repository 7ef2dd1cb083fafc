package main

import (
	"os"

	"pybridge/cmd/pybridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
