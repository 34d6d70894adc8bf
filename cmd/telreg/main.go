// Command telreg runs and talks to a telephony state registry.
package main

import (
	"os"

	"github.com/hedeqiang/telreg/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
