// Package main provides the chat relay binary: a UDP relay that registers
// up to ten clients and fans their frames out to one another.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(run).Execute(); err != nil {
		os.Exit(1)
	}
}
