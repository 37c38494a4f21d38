// Command docindex indexes document directories and serves hybrid search
// over HTTP.
package main

import (
	"os"

	"github.com/Aman-CERP/docindex/cmd/docindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
