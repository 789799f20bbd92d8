package nitro

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ctx defines the supporting context of the launcher: the directory profile
// operations act on, where cached package metadata lives, and where output
// goes. Logger carries diagnostics; Out, when set, receives user-facing
// command output.
type Ctx struct {
	WorkingDir string
	CacheDir   string // package metadata cache location
	Logger     *logrus.Logger
	Out        *log.Logger
}

// NewContext returns a Ctx rooted at the platform's default user cache
// location.
func NewContext(logger *logrus.Logger) (*Ctx, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to determine user cache directory")
	}
	return &Ctx{
		CacheDir: filepath.Join(dir, "nitro"),
		Logger:   logger,
	}, nil
}

// Registry opens the package registry backed by this context's cache
// directory. The caller owns the returned registry and must Release it.
func (c *Ctx) Registry(repos ...resolve.Repository) (*resolve.Registry, error) {
	return resolve.NewRegistry(c.CacheDir, c.Logger, repos...)
}

// LoadProfile reads the profile file from dir.
func (c *Ctx) LoadProfile(dir string) (*Profile, error) {
	path := filepath.Join(dir, ProfileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer f.Close()

	p, err := ReadProfile(f)
	return p, errors.Wrapf(err, "error while parsing %s", path)
}

// LoadLock reads the lock file from dir. A missing lock file is not an
// error; both return values are nil.
func (c *Ctx) LoadLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	defer f.Close()

	l, err := ReadLock(f)
	return l, errors.Wrapf(err, "error while parsing %s", path)
}

// LockIsCurrent reports whether l was produced from p's exact inputs. A
// current lock makes resolving again unnecessary.
func LockIsCurrent(p *Profile, l *Lock) bool {
	if p == nil || l == nil {
		return false
	}
	return string(l.Digest) == string(p.InputsDigest())
}

// ResolveProfile resolves p against eval and returns the lock capturing
// the outcome. input is the evaluation prototype shared by every package;
// nil means default parameters.
func (c *Ctx) ResolveProfile(ctx context.Context, p *Profile, eval resolve.PackageEvaluator, input resolve.EvalInput) (*Lock, error) {
	if input == nil {
		input = &resolve.EvalParameters{}
	}
	res, err := resolve.Resolve(ctx, p.ConfiguredPackages(), eval, input, p.Overrides, c.Logger)
	if err != nil {
		return nil, err
	}
	return NewLockFromResolution(p.InputsDigest(), res), nil
}
