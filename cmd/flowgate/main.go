// Command flowgate manages workflows from the shell.
package main

import (
	"os"

	"github.com/petrijr/flowgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
