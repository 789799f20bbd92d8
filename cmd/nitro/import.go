package main

import (
	"context"
	"flag"
	"path/filepath"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
	"github.com/pkg/errors"
)

const importShortHelp = `Copy a package's metadata into the local repository`
const importLongHelp = `
Import copies the package metadata directory at dir into the local
repository under the cache directory. The directory's base name is taken as
the package id, so ./packs/my-pack imports as "my-pack".

Imported packages shadow the same id in every other repository, which makes
import the way to try out a package before it is published, or to pin a
patched copy of one that is.
`

func (cmd *importCommand) Name() string      { return "import" }
func (cmd *importCommand) Args() string      { return "<dir>" }
func (cmd *importCommand) ShortHelp() string { return importShortHelp }
func (cmd *importCommand) LongHelp() string  { return importLongHelp }
func (cmd *importCommand) Hidden() bool      { return false }

func (cmd *importCommand) Register(fs *flag.FlagSet) {}

type importCommand struct{}

func (cmd *importCommand) Run(ctx *nitro.Ctx, args []string) error {
	if len(args) != 1 {
		return errors.New("import takes exactly one package directory")
	}

	reg, err := openRegistry(ctx, nil)
	if err != nil {
		return err
	}
	defer reg.Release()

	if err := reg.ImportLocal(context.Background(), args[0]); err != nil {
		return err
	}
	ctx.Out.Printf("imported %q into the local repository\n", filepath.Base(filepath.Clean(args[0])))
	return nil
}
