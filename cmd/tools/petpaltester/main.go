// Command petpaltester exercises a running PetPal backend from the command line.
//
// Usage:
//
//	petpaltester [flags] <command> [args]
//
// Commands:
//
//	text  - send a consultation to POST /health/text (or its SSE variant)
//	live  - stream a raw PCM file over /ws/live and save the reply audio
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
