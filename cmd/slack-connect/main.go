package main

import (
	"context"

	"github.com/redpanda-data/benthos/v4/public/service"

	_ "github.com/catfoxtech/slack-connect/public/components/slack"
	_ "github.com/redpanda-data/benthos/v4/public/components/pure"
)

var (
	// Version and DateBuilt are set at build time via ldflags.
	Version   string
	DateBuilt string
)

func main() {
	service.RunCLI(
		context.Background(),
		service.CLIOptSetVersion(Version, DateBuilt),
		service.CLIOptSetBinaryName("slack-connect"),
		service.CLIOptSetProductName("Slack Connect"),
	)
}
