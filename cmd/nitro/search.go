package main

import (
	"flag"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
	"github.com/pkg/errors"
)

const searchShortHelp = `Search the repositories for packages`
const searchLongHelp = `
Search prints the ids of known packages, narrowed by an optional term and by
the -kind and -category filters. Ids the term prefixes sort ahead of ids that
merely contain it; with no term every known package is listed.

Repositories are named with -repo the same way "nitro resolve" takes them.
The local repository is always searched too.
`

func (cmd *searchCommand) Name() string      { return "search" }
func (cmd *searchCommand) Args() string      { return "[term]" }
func (cmd *searchCommand) ShortHelp() string { return searchShortHelp }
func (cmd *searchCommand) LongHelp() string  { return searchLongHelp }
func (cmd *searchCommand) Hidden() bool      { return false }

func (cmd *searchCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.repos, "repo", "metadata repository as id=path, repeatable")
	fs.Var(&cmd.kinds, "kind", "keep only packages of these kinds, comma separated")
	fs.Var(&cmd.categories, "category", "keep only packages in these categories, comma separated")
	fs.IntVar(&cmd.count, "count", 0, "cap the number of results, 0 for all")
	fs.IntVar(&cmd.skip, "skip", 0, "skip the first n results")
}

type searchCommand struct {
	repos      repoFlags
	kinds      csvFlag
	categories csvFlag
	count      int
	skip       int
}

func (cmd *searchCommand) Run(ctx *nitro.Ctx, args []string) error {
	var term string
	switch len(args) {
	case 0:
	case 1:
		term = args[0]
	default:
		return errors.Errorf("too many args (%d)", len(args))
	}

	reg, err := openRegistry(ctx, cmd.repos)
	if err != nil {
		return err
	}
	defer reg.Release()

	ids := reg.Search(resolve.PackageSearchParameters{
		Count:      cmd.count,
		Skip:       cmd.skip,
		Search:     term,
		Kinds:      cmd.kinds,
		Categories: cmd.categories,
	})
	if len(ids) == 0 {
		ctx.Out.Println("no packages found")
		return nil
	}
	for _, id := range ids {
		ctx.Out.Println(id)
	}
	return nil
}
