package resolve

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// traceError is implemented by failures that can emit a condensed form for
// resolver logging.
type traceError interface {
	traceString() string
}

// traceMessage prefers a failure's condensed form over its full rendering.
func traceMessage(err error) string {
	if te, ok := err.(traceError); ok {
		return te.traceString()
	}
	return err.Error()
}

// PreloadError reports that the evaluator's batch warm-up failed. It is
// always fatal to resolution.
type PreloadError struct {
	Err error
}

func (e *PreloadError) Error() string {
	return fmt.Sprintf("failed to preload packages: %s", e.Err)
}

func (e *PreloadError) Unwrap() error { return e.Err }

// PropertiesError reports a failed property lookup for one package.
type PropertiesError struct {
	Req *PackageRequest
	Err error
}

func (e *PropertiesError) Error() string {
	return fmt.Sprintf("failed to get properties of package '%s': %s", e.Req, e.Err)
}

func (e *PropertiesError) Unwrap() error { return e.Err }

// EvalError reports that relation evaluation failed for one package.
type EvalError struct {
	Req *PackageRequest
	Err error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("failed to evaluate package '%s': %s", e.Req, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// NoValidVersionsError reports constraints that narrowed a package's
// published version list down to nothing.
type NoValidVersionsError struct {
	Req         *PackageRequest
	Constraints []VersionPattern
}

func (e *NoValidVersionsError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "could not find a version of '%s' that matches all of the content version requirements:", e.Req)
	for _, c := range e.Constraints {
		fmt.Fprintf(&buf, "\n\t%s", c)
	}
	return buf.String()
}

func (e *NoValidVersionsError) traceString() string {
	pats := make([]string, len(e.Constraints))
	for i, c := range e.Constraints {
		pats[i] = c.String()
	}
	return fmt.Sprintf("no valid versions of %s under [%s]", e.Req.ID, strings.Join(pats, " "))
}

// IncompatibleError reports a package that became required despite being
// refused. Refusers lists the id of every package refusing it.
type IncompatibleError struct {
	Req      *PackageRequest
	Refusers []string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("package '%s' is incompatible with existing packages %s", e.Req.DebugSources(), strings.Join(e.Refusers, ", "))
}

func (e *IncompatibleError) traceString() string {
	return fmt.Sprintf("%s incompatible with [%s]", e.Req.ID, strings.Join(e.Refusers, " "))
}

// ExtensionError reports a declared extension whose target never became
// required. Source is the extending package when known.
type ExtensionError struct {
	Source *PackageRequest
	Req    *PackageRequest
}

func (e *ExtensionError) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("the package '%s' extends the functionality of the package '%s', which is not installed", e.Source.DebugSources(), e.Req)
	}
	return fmt.Sprintf("a package extends the functionality of the package '%s', which is not installed", e.Req)
}

// ExplicitRequireError reports an explicit dependency on a package the user
// never required directly.
type ExplicitRequireError struct {
	Target *PackageRequest
	Source *PackageRequest
}

func (e *ExplicitRequireError) Error() string {
	return fmt.Sprintf("package '%s' has been explicitly required by package '%s'; it must be required by the user in their config", e.Target, e.Source)
}

// PackageContextError wraps another failure with the package being
// evaluated when it happened. Contexts nest along transitive chains.
type PackageContextError struct {
	Req *PackageRequest
	Err error
}

func (e *PackageContextError) Error() string {
	return fmt.Sprintf("in package '%s': %s", e.Req.DebugSources(), e.Err)
}

func (e *PackageContextError) Unwrap() error { return e.Err }

func (e *PackageContextError) traceString() string {
	return fmt.Sprintf("in %s: %s", e.Req.ID, traceMessage(e.Err))
}

// MiscError carries an opaque caller-side failure, typically from
// configuration overrides, through the taxonomy.
type MiscError struct {
	Err error
}

func (e *MiscError) Error() string { return e.Err.Error() }

func (e *MiscError) Unwrap() error { return e.Err }

// makeErrorDisplayable rewrites every request embedded in err into its
// displayable form so callers present user-facing identifiers rather than
// raw ids.
func makeErrorDisplayable(ctx context.Context, eval PackageEvaluator, err error) error {
	switch e := err.(type) {
	case *PropertiesError:
		return &PropertiesError{Req: displayableReq(ctx, eval, e.Req), Err: e.Err}
	case *EvalError:
		return &EvalError{Req: displayableReq(ctx, eval, e.Req), Err: e.Err}
	case *NoValidVersionsError:
		return &NoValidVersionsError{Req: displayableReq(ctx, eval, e.Req), Constraints: e.Constraints}
	case *IncompatibleError:
		return &IncompatibleError{Req: displayableReq(ctx, eval, e.Req), Refusers: e.Refusers}
	case *ExtensionError:
		return &ExtensionError{
			Source: displayableReq(ctx, eval, e.Source),
			Req:    displayableReq(ctx, eval, e.Req),
		}
	case *ExplicitRequireError:
		return &ExplicitRequireError{
			Target: displayableReq(ctx, eval, e.Target),
			Source: displayableReq(ctx, eval, e.Source),
		}
	case *PackageContextError:
		return &PackageContextError{
			Req: displayableReq(ctx, eval, e.Req),
			Err: makeErrorDisplayable(ctx, eval, e.Err),
		}
	}
	return err
}

func displayableReq(ctx context.Context, eval PackageEvaluator, req *PackageRequest) *PackageRequest {
	if req == nil {
		return nil
	}
	return eval.MakeRequestDisplayable(ctx, req)
}
