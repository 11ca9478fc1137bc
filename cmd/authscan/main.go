// Command authscan runs authenticated scans against a ZAP-compatible engine.
package main

import (
	"os"

	"github.com/ssdt/authscan/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
