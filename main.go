// Command newsroom builds the Newsroom summarization dataset.
package main

import (
	"os"

	"github.com/JakeFAU/newsroom-builder/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
