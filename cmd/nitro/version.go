package main

import (
	"flag"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
)

const versionShortHelp = `Display version`
const versionLongHelp = `
Display version of this application.
`

const Version = "0.5.0"

func (cmd *versionCommand) Name() string      { return "version" }
func (cmd *versionCommand) Args() string      { return "" }
func (cmd *versionCommand) ShortHelp() string { return versionShortHelp }
func (cmd *versionCommand) LongHelp() string  { return versionLongHelp }
func (cmd *versionCommand) Hidden() bool      { return false }

func (cmd *versionCommand) Register(fs *flag.FlagSet) {
}

type versionCommand struct {
}

func (cmd *versionCommand) Run(ctx *nitro.Ctx, args []string) error {
	ctx.Out.Printf("nitro version %s\n", Version)
	return nil
}
