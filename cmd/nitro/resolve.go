package main

import (
	"context"
	"flag"
	"path/filepath"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
)

const resolveShortHelp = `Resolve the profile's packages and write the lock file`
const resolveLongHelp = `
Resolve reads the profile (` + nitro.ProfileName + `) in dir, computes the
complete package set it implies and writes the outcome to the lock file
(` + nitro.LockName + `). If dir isn't specified, the current directory is
used.

Packages are looked up in the metadata repositories named with -repo, each
given as id=path or as a bare path whose base name becomes the id. The local
repository, populated by "nitro import", always participates and takes
precedence over the others.

When the existing lock was produced from the same profile inputs nothing is
done; -f forces a fresh resolution anyway.
`

func (cmd *resolveCommand) Name() string      { return "resolve" }
func (cmd *resolveCommand) Args() string      { return "[dir]" }
func (cmd *resolveCommand) ShortHelp() string { return resolveShortHelp }
func (cmd *resolveCommand) LongHelp() string  { return resolveLongHelp }
func (cmd *resolveCommand) Hidden() bool      { return false }

func (cmd *resolveCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.repos, "repo", "metadata repository as id=path, repeatable")
	fs.BoolVar(&cmd.dryRun, "n", false, "print the resolution without writing the lock file")
	fs.BoolVar(&cmd.force, "f", false, "resolve even when the lock file is already current")
	fs.StringVar(&cmd.side, "side", "", "side the packages run on, e.g. client or server")
	fs.StringVar(&cmd.loader, "loader", "", "mod loader the profile runs")
	fs.StringVar(&cmd.stability, "stability", "", "default content stability, stable or latest")
}

type resolveCommand struct {
	repos     repoFlags
	dryRun    bool
	force     bool
	side      string
	loader    string
	stability string
}

func (cmd *resolveCommand) Run(ctx *nitro.Ctx, args []string) error {
	dir, err := dirFromArgs(ctx, args)
	if err != nil {
		return err
	}

	p, err := ctx.LoadProfile(dir)
	if err != nil {
		return err
	}
	old, err := ctx.LoadLock(dir)
	if err != nil {
		return err
	}
	if !cmd.force && nitro.LockIsCurrent(p, old) {
		ctx.Out.Printf("%s is already up to date\n", nitro.LockName)
		return nil
	}

	stability, err := resolve.ParsePackageStability(cmd.stability)
	if err != nil {
		return err
	}
	input := &resolve.EvalParameters{
		Side:      cmd.side,
		Loader:    cmd.loader,
		Stability: stability,
	}

	reg, err := openRegistry(ctx, cmd.repos)
	if err != nil {
		return err
	}
	defer reg.Release()

	lock, err := ctx.ResolveProfile(context.Background(), p, reg, input)
	if err != nil {
		return err
	}

	if cmd.dryRun {
		printLock(ctx.Out, lock)
		return nil
	}

	path := filepath.Join(dir, nitro.LockName)
	if err := nitro.WriteLockSafe(path, lock); err != nil {
		return err
	}
	ctx.Out.Printf("resolved %d packages into %s\n", len(lock.Packages), path)
	printRecommendations(ctx.Out, lock)
	return nil
}
