// ABOUTME: Entry point for the dealboard server, MCP server and CLI
// ABOUTME: Hands the arguments to the cobra command tree
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harperreed/dealboard/cli"

	// Embedded zone data so Asia/Tokyo resolves on minimal images.
	_ "time/tzdata"
)

const version = "0.1.0"

func main() {
	if err := cli.Execute(context.Background(), version, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
