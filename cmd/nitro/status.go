package main

import (
	"flag"
	"fmt"
	"log"
	"text/tabwriter"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
	"github.com/pkg/errors"
)

const statusShortHelp = `Report the lock file's contents and whether it is current`
const statusLongHelp = `
Status prints the packages pinned by the lock file in dir, or the current
directory if dir isn't specified.

  ID          Package id
  REPOSITORY  Repository the package is pinned to, - when any may serve it
  VERSION     Version pattern the package resolved under, * when unconstrained
  SOURCE      Why the package is present: user-require, bundled or dependency

Status fails when there is no lock file or when the lock no longer matches
the profile's inputs, so it can gate scripted launches.
`

func (cmd *statusCommand) Name() string      { return "status" }
func (cmd *statusCommand) Args() string      { return "[dir]" }
func (cmd *statusCommand) ShortHelp() string { return statusShortHelp }
func (cmd *statusCommand) LongHelp() string  { return statusLongHelp }
func (cmd *statusCommand) Hidden() bool      { return false }

func (cmd *statusCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.json, "json", false, "output in JSON format")
}

type statusCommand struct {
	json bool
}

func (cmd *statusCommand) Run(ctx *nitro.Ctx, args []string) error {
	dir, err := dirFromArgs(ctx, args)
	if err != nil {
		return err
	}

	p, err := ctx.LoadProfile(dir)
	if err != nil {
		return err
	}
	lock, err := ctx.LoadLock(dir)
	if err != nil {
		return err
	}
	if lock == nil {
		return errors.Errorf("no %s present; run \"nitro resolve\"", nitro.LockName)
	}

	if cmd.json {
		b, err := lock.MarshalJSON()
		if err != nil {
			return err
		}
		ctx.Out.Print(string(b))
	} else {
		printLock(ctx.Out, lock)
		printRecommendations(ctx.Out, lock)
	}

	if !nitro.LockIsCurrent(p, lock) {
		return errors.Errorf("%s is out of date with %s; run \"nitro resolve\"", nitro.LockName, nitro.ProfileName)
	}
	return nil
}

func printLock(out *log.Logger, l *nitro.Lock) {
	w := tabwriter.NewWriter(out.Writer(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPOSITORY\tVERSION\tSOURCE")
	for _, lp := range l.Packages {
		repo := lp.Repository
		if repo == "" {
			repo = "-"
		}
		version := lp.Version
		if version == "" {
			version = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", lp.ID, repo, version, lp.Source)
	}
	w.Flush()
}

func printRecommendations(out *log.Logger, l *nitro.Lock) {
	for _, rec := range l.Recommendations {
		if rec.Invert {
			out.Printf("note: installing %q is recommended against\n", rec.ID)
		} else {
			out.Printf("note: package %q is recommended but not installed\n", rec.ID)
		}
	}
}
