// Command lorastudio is the document-to-LoRA fine-tuning pipeline CLI.
package main

import (
	"os"

	"github.com/custodia-labs/lorastudio/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)
	os.Exit(cli.Execute())
}
