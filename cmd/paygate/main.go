// Command paygate runs the course payment gateway and its maintenance tasks.
package main

import (
	"os"

	"github.com/Additional-Code/paygate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
