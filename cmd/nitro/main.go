// Command nitro resolves the package set of a game profile against
// declarative package repositories.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	nitro "github.com/Nitrolaunch/nitrolaunch-sub000"
	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type command interface {
	Name() string           // "foobar"
	Args() string           // "<baz> [quux...]"
	ShortHelp() string      // "Foo the first bar"
	LongHelp() string       // "Foo the first bar meeting the following conditions..."
	Register(*flag.FlagSet) // command-specific flags
	Hidden() bool           // indicates whether the command should be hidden from help output
	Run(*nitro.Ctx, []string) error
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory", err)
		os.Exit(1)
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
		Env:        os.Environ(),
	}
	os.Exit(c.Run())
}

// A Config specifies a full configuration for a nitro execution.
type Config struct {
	WorkingDir     string    // Where to execute
	Args           []string  // Command-line arguments, starting with the program name.
	Env            []string  // Environment variables
	Stdout, Stderr io.Writer // Log output
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	// Build the list of available commands.
	commands := []command{
		&resolveCommand{},
		&statusCommand{},
		&searchCommand{},
		&importCommand{},
		&versionCommand{},
	}

	examples := [][2]string{
		{
			"nitro resolve",
			"resolve the profile's packages and write the lock file",
		},
		{
			"nitro resolve -n",
			"preview the resolution without writing the lock file",
		},
		{
			"nitro search sodium",
			"find packages by id",
		},
		{
			"nitro import ./my-pack",
			"copy a package's metadata into the local repository",
		},
	}

	outLogger := log.New(c.Stdout, "", 0)
	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("nitro is a tool for resolving the packages a game profile asks for")
		errLogger.Println()
		errLogger.Println("Usage: nitro <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Examples:")
		for _, example := range examples {
			fmt.Fprintf(w, "\t%s\t%s\n", example[0], example[1])
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Use \"nitro help [command]\" for more information about a command.")
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		exitCode = 1
		return
	}

	for _, cmd := range commands {
		if cmd.Name() == cmdName {
			// Build flag set with global flags in there.
			fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
			fs.SetOutput(c.Stderr)
			verbose := fs.Bool("v", false, "enable verbose logging")
			cachedir := fs.String("cachedir", "", "override the package metadata cache location")

			// Register the subcommand flags in there, too.
			cmd.Register(fs)

			// Override the usage text to something nicer.
			resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

			if printCommandHelp {
				fs.Usage()
				exitCode = 1
				return
			}

			// Parse the flags the user gave us.
			// flag package automatically prints usage and error message in err != nil
			// or if '-h' flag provided
			if err := fs.Parse(c.Args[2:]); err != nil {
				exitCode = 1
				return
			}

			// Set up the nitro context.
			logger := logrus.New()
			logger.SetOutput(c.Stderr)
			if *verbose {
				logger.Level = logrus.DebugLevel
			} else {
				logger.Level = logrus.WarnLevel
			}

			ctx, err := nitro.NewContext(logger)
			if err != nil {
				errLogger.Printf("%v\n", err)
				exitCode = 1
				return
			}
			ctx.WorkingDir = c.WorkingDir
			ctx.Out = outLogger
			if dir := *cachedir; dir != "" {
				ctx.CacheDir = dir
			} else if dir := getEnv(c.Env, "NITRO_CACHE"); dir != "" {
				ctx.CacheDir = dir
			}

			// Run the command with the post-flag-processing args.
			if err := cmd.Run(ctx, fs.Args()); err != nil {
				errLogger.Printf("%v\n", err)
				exitCode = 1
				return
			}

			// Easy peasy livin' breezy.
			return
		}
	}

	errLogger.Printf("nitro: %s: no such command\n", cmdName)
	usage()
	exitCode = 1
	return
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		// Default-empty string vars should read "(default: <none>)"
		// rather than the comparatively ugly "(default: )".
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: nitro %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the name of the nitro command and whether the user asked for
// help to be printed.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}

// getEnv returns the last instance of an environment variable.
func getEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		v := env[i]
		kv := strings.SplitN(v, "=", 2)
		if kv[0] == key {
			if len(kv) > 1 {
				return kv[1]
			}
			return ""
		}
	}
	return ""
}

// repoFlags collects repeated -repo flags. Each value is either id=path or
// a bare path whose base name becomes the repository id.
type repoFlags []string

func (f *repoFlags) String() string { return strings.Join(*f, " ") }

func (f *repoFlags) Set(s string) error {
	if s == "" {
		return errors.New("repository must be given as id=path or a path")
	}
	*f = append(*f, s)
	return nil
}

func splitRepoFlag(spec string) (id, path string) {
	if i := strings.IndexByte(spec, '='); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return filepath.Base(filepath.Clean(spec)), spec
}

// csvFlag collects comma separated flag values, accumulating across
// repeated uses of the flag.
type csvFlag []string

func (f *csvFlag) String() string { return strings.Join(*f, ",") }

func (f *csvFlag) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}

// openRegistry opens a registry over the local repository plus every
// repository named by -repo flags. The local repository is registered
// first so imported packages shadow the same id elsewhere.
func openRegistry(ctx *nitro.Ctx, flags repoFlags) (*resolve.Registry, error) {
	localdir, err := ensureLocalRepo(ctx.CacheDir)
	if err != nil {
		return nil, err
	}
	local, err := resolve.NewDirRepository(resolve.LocalRepoID, localdir)
	if err != nil {
		return nil, err
	}

	repos := []resolve.Repository{local}
	for _, spec := range flags {
		id, path := splitRepoFlag(spec)
		if id == "" {
			return nil, errors.Errorf("repository flag %q has no id", spec)
		}
		r, err := resolve.NewDirRepository(id, path)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return ctx.Registry(repos...)
}

// ensureLocalRepo creates the local repository skeleton under the cache
// directory on first use so that imports have somewhere to land.
func ensureLocalRepo(cachedir string) (string, error) {
	dir := filepath.Join(cachedir, resolve.LocalRepoID)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", errors.Wrapf(err, "Unable to create local repository at %s", dir)
	}
	for _, name := range []string{"index.json", "index.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}
	}
	path := filepath.Join(dir, "index.json")
	if err := os.WriteFile(path, []byte("{}\n"), 0666); err != nil {
		return "", errors.Wrapf(err, "Unable to write local repository index at %s", path)
	}
	return dir, nil
}

// dirFromArgs picks the profile directory a command acts on: the single
// positional argument when given, the working directory otherwise.
func dirFromArgs(ctx *nitro.Ctx, args []string) (string, error) {
	switch len(args) {
	case 0:
		if ctx.WorkingDir != "" {
			return ctx.WorkingDir, nil
		}
		return ".", nil
	case 1:
		return args[0], nil
	}
	return "", errors.Errorf("too many args (%d)", len(args))
}
