package main

import (
	"github.com/alecthomas/kong"

	"pressgate/cmd/cli"
)

var app struct {
	Run  cli.RunCmd  `cmd:"" help:"Run a publishing task against its provider chain."`
	Lint cli.LintCmd `cmd:"" help:"Validate a run configuration without publishing."`
}

func main() {
	ktx := kong.Parse(&app,
		kong.Name("pressgate"),
		kong.Description("Multi-provider publishing orchestrator for CMS targets."),
		kong.UsageOnError(),
	)
	ktx.FatalIfErrorf(ktx.Run())
}
