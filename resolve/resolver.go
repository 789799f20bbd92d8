package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// resolver holds all state for one resolution run: the work queue, the
// dependency map keyed by bare package id, the global constraint list, and
// the per-package configuration. Everything lives and dies inside a single
// Resolve call; nothing is shared across runs.
type resolver struct {
	l     *logrus.Logger
	eval  PackageEvaluator
	input EvalInput

	overrides Overrides

	queue       taskQueue
	deps        map[string]*Dependency
	configs     map[string]ConfiguredPackage
	constraints []constraint
	preloaded   map[string]bool
}

// Resolve computes the complete package set for the configured packages.
// The evaluator is called one operation at a time; relation evaluation is
// deferred and batched so the evaluator can warm whole waves of packages in
// one preload. Any returned error already has every embedded request
// rewritten into its displayable form.
func Resolve(ctx context.Context, configured []ConfiguredPackage, eval PackageEvaluator, input EvalInput, overrides Overrides, l *logrus.Logger) (*ResolutionResult, error) {
	if l == nil {
		l = logrus.New()
	}

	r := &resolver{
		l:         l,
		eval:      eval,
		input:     input,
		overrides: overrides,
		deps:      make(map[string]*Dependency),
		configs:   make(map[string]ConfiguredPackage),
		preloaded: make(map[string]bool),
	}

	res, err := r.run(ctx, configured)
	if err != nil {
		return nil, makeErrorDisplayable(ctx, eval, err)
	}
	return res, nil
}

func (r *resolver) run(ctx context.Context, configured []ConfiguredPackage) (*ResolutionResult, error) {
	// Warm every configured package in one round trip before seeding.
	kept := make([]ConfiguredPackage, 0, len(configured))
	var initial []string
	for _, c := range configured {
		req := c.GetPackage()
		if r.overrides.suppressed(req.ID) {
			continue
		}
		kept = append(kept, c)
		initial = append(initial, req.ID)
	}
	if err := r.eval.PreloadPackages(ctx, initial); err != nil {
		return nil, &PreloadError{Err: err}
	}
	r.markPreloaded(initial)

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].GetPackage().Less(kept[j].GetPackage())
	})
	for _, c := range kept {
		req := c.GetPackage()
		r.configs[req.ID] = c
		r.updateDependency(req, KindUserRequire)
	}

	if err := r.drain(ctx); err != nil {
		return nil, err
	}
	return r.finish()
}

// drain works the task queue to empty. Tasks whose package has not been
// preloaded are skipped and requeued; once a full pass finds nothing
// runnable, everything still queued is preloaded in one batch and the drain
// starts over.
func (r *resolver) drain(ctx context.Context) error {
	for {
		skipped := 0
		for {
			if r.queue.len() == 0 {
				return nil
			}
			if skipped >= r.queue.len() {
				break
			}
			t, _ := r.queue.pop()
			if et, ok := t.(evalTask); ok && !r.preloaded[et.dest.ID] && !r.overrides.suppressed(et.dest.ID) {
				r.queue.push(t)
				skipped++
				continue
			}
			if err := r.resolveTask(ctx, t); err != nil {
				return err
			}
			r.checkCompats()
			skipped = 0
		}

		var wave []string
		for _, dest := range r.queue.pendingEvalDests() {
			if r.overrides.suppressed(dest.ID) || containsString(wave, dest.ID) {
				continue
			}
			wave = append(wave, dest.ID)
		}
		if r.l.Level >= logrus.DebugLevel {
			r.l.WithFields(logrus.Fields{
				"count": len(wave),
			}).Debug("preloading queued packages")
		}
		if err := r.eval.PreloadPackages(ctx, wave); err != nil {
			return &PreloadError{Err: err}
		}
		r.markPreloaded(wave)
	}
}

func (r *resolver) markPreloaded(ids []string) {
	for _, id := range ids {
		r.preloaded[id] = true
	}
}

// resolveTask runs one unit of work. Failures are absorbed when the task's
// package sits behind an optional chain; the package simply drops out of
// the result along with anything reachable only through it.
func (r *resolver) resolveTask(ctx context.Context, t task) error {
	et, ok := t.(evalTask)
	if !ok {
		panic(fmt.Sprintf("unknown task type %T", t))
	}
	if r.overrides.suppressed(et.dest.ID) {
		return nil
	}
	if err := r.resolveEvalPackage(ctx, et.dest); err != nil {
		if r.optionalChain(et.dest) {
			if r.l.Level >= logrus.WarnLevel {
				r.l.WithFields(logrus.Fields{
					"pkg": et.dest.ID,
					"err": traceMessage(err),
				}).Warn("absorbing failure of optional package")
			}
			if d, has := r.deps[et.dest.ID]; has {
				d.evalFailed = true
			}
			return nil
		}
		return &PackageContextError{Req: et.dest, Err: err}
	}
	if d, has := r.deps[et.dest.ID]; has {
		d.evalFailed = false
	}
	return nil
}

// optionalChain reports whether req is optional itself or reachable through
// requirement hops starting at an optional configured package.
func (r *resolver) optionalChain(req *PackageRequest) bool {
	for cur := req; cur != nil; cur = requirementParent(cur.source()) {
		if c, has := r.configs[cur.ID]; has && c.IsOptional() {
			return true
		}
	}
	return false
}

// resolveEvalPackage evaluates one package's relations and folds them into
// the resolver state.
func (r *resolver) resolveEvalPackage(ctx context.Context, pkg *PackageRequest) error {
	if err := r.checkConstraints(pkg); err != nil {
		return err
	}

	d := r.dependencyFor(pkg)
	r.canonicalizeVersions(ctx, d)

	props, err := r.eval.GetPackageProperties(ctx, pkg)
	if err != nil {
		return &PropertiesError{Req: pkg, Err: err}
	}

	required, preferred := admissibleVersions(d, props)
	if len(required) == 0 && len(props.ContentVersions) > 0 {
		return &NoValidVersionsError{Req: pkg, Constraints: d.constraints()}
	}

	input := r.input.Clone()
	input.SetContentVersions(required, preferred)
	input.SetForce(r.overrides.forced(pkg.ID))
	if c, has := r.configs[pkg.ID]; has {
		if err := c.OverrideConfiguredPackageInput(props, input); err != nil {
			return &MiscError{Err: err}
		}
	}

	rel, err := r.eval.EvalPackageRelations(ctx, pkg, input)
	if err != nil {
		return &EvalError{Req: pkg, Err: err}
	}

	if r.l.Level >= logrus.DebugLevel {
		r.l.WithFields(logrus.Fields{
			"pkg":       pkg.ID,
			"deps":      len(rel.Deps),
			"conflicts": len(rel.Conflicts),
			"bundled":   len(rel.Bundled),
		}).Debug("evaluated package relations")
	}

	return r.applyRelations(pkg, rel)
}

// dependencyFor returns the record for req, creating one without queue side
// effects when it is somehow missing.
func (r *resolver) dependencyFor(req *PackageRequest) *Dependency {
	d, has := r.deps[req.ID]
	if !has {
		d = &Dependency{Pkg: req}
		r.deps[req.ID] = d
	}
	return d
}

// canonicalizeVersions translates every pending raw pattern through the
// evaluator so constraints match against canonical version names. The
// originals move to the translated ledger and are never sent twice.
func (r *resolver) canonicalizeVersions(ctx context.Context, d *Dependency) {
	for _, raw := range d.uncanonicalized {
		probe := &PackageRequest{
			ID:             d.Pkg.ID,
			Source:         d.Pkg.Source,
			Repository:     d.Pkg.Repository,
			ContentVersion: raw,
		}
		disp := r.eval.MakeRequestDisplayable(ctx, probe)
		d.canonicalized = append(d.canonicalized, disp.Pattern())
		d.alreadyCanonicalized = append(d.alreadyCanonicalized, raw)
	}
	d.uncanonicalized = nil
}

// admissibleVersions narrows the published version list by every canonical
// constraint in sequence and collects the versions named as preferred.
func admissibleVersions(d *Dependency, props PackageProperties) (required, preferred []string) {
	required = props.ContentVersions
	for _, c := range d.canonicalized {
		required = c.Match(required)
		if v, ok := preferredVersion(c); ok && !containsString(preferred, v) {
			preferred = append(preferred, v)
		}
	}
	return required, preferred
}

// applyRelations folds one evaluation's relations into the resolver state.
// Relation values use the request string form, so a dependency may pin a
// repository or carry a version pattern. Every relation family is sorted by
// request ordering before processing so repeated runs produce identical
// constraint and task orderings.
func (r *resolver) applyRelations(pkg *PackageRequest, rel RelationsResult) error {
	for _, target := range parseTargets(rel.Conflicts, RefusedBy(pkg)) {
		if r.isRequired(target.ID) {
			return &IncompatibleError{Req: target, Refusers: []string{pkg.ID}}
		}
		r.constraints = append(r.constraints, refuseConstraint{target: target})
	}

	type depEntry struct {
		req      *PackageRequest
		explicit bool
	}
	var deps []depEntry
	for _, group := range rel.Deps {
		for _, dep := range group {
			deps = append(deps, depEntry{
				req:      ParseRequest(dep.Value, DependencyOf(pkg)),
				explicit: dep.Explicit,
			})
		}
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].req.Less(deps[j].req) {
			return true
		}
		if deps[j].req.Less(deps[i].req) {
			return false
		}
		return !deps[i].explicit && deps[j].explicit
	})
	for _, dep := range deps {
		if dep.explicit && !r.userRequired(dep.req.ID) {
			return &ExplicitRequireError{Target: dep.req, Source: pkg}
		}
		if err := r.checkConstraints(dep.req); err != nil {
			return err
		}
		r.updateDependency(dep.req, KindRequire)
	}

	for _, target := range parseTargets(rel.Bundled, BundledBy(pkg)) {
		if err := r.checkConstraints(target); err != nil {
			return err
		}
		r.updateDependency(target, KindBundled)
	}

	type compatEntry struct {
		trigger    *PackageRequest
		obligation *PackageRequest
	}
	var compats []compatEntry
	for _, pair := range rel.Compats {
		compats = append(compats, compatEntry{
			trigger:    ParseRequest(pair[0], DependencyOf(pkg)),
			obligation: ParseRequest(pair[1], DependencyOf(pkg)),
		})
	}
	sort.Slice(compats, func(i, j int) bool {
		if compats[i].trigger.Less(compats[j].trigger) {
			return true
		}
		if compats[j].trigger.Less(compats[i].trigger) {
			return false
		}
		return compats[i].obligation.Less(compats[j].obligation)
	})
	for _, ce := range compats {
		if r.compatExists(ce.trigger.ID, ce.obligation.ID) {
			continue
		}
		r.constraints = append(r.constraints, compatConstraint{
			trigger:    ce.trigger,
			obligation: ce.obligation,
		})
	}

	for _, target := range parseTargets(rel.Extensions, DependencyOf(pkg)) {
		r.constraints = append(r.constraints, extendConstraint{target: target})
	}

	type recEntry struct {
		req    *PackageRequest
		invert bool
	}
	var recs []recEntry
	for _, rec := range rel.Recommendations {
		recs = append(recs, recEntry{
			req:    ParseRequest(rec.Value, DependencyOf(pkg)),
			invert: rec.Invert,
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].req.Less(recs[j].req) {
			return true
		}
		if recs[j].req.Less(recs[i].req) {
			return false
		}
		return !recs[i].invert && recs[j].invert
	})
	for _, rec := range recs {
		r.constraints = append(r.constraints, recommendConstraint{
			target: rec.req,
			invert: rec.invert,
		})
	}

	return nil
}

// parseTargets parses one relation family's values into requests sharing a
// source, sorted for deterministic processing.
func parseTargets(values []string, source Source) []*PackageRequest {
	out := make([]*PackageRequest, 0, len(values))
	for _, v := range values {
		out = append(out, ParseRequest(v, source))
	}
	sortRequests(out)
	return out
}

// updateDependency records one requirement for req, raising the dependency
// kind and folding in the request's version constraint. A task is queued
// whenever this changed anything a fresh evaluation could observe.
func (r *resolver) updateDependency(req *PackageRequest, kind DependencyKind) {
	if r.overrides.suppressed(req.ID) {
		return
	}
	d, has := r.deps[req.ID]
	inserted := false
	if !has {
		d = &Dependency{Pkg: req, Kind: kind}
		r.deps[req.ID] = d
		inserted = true
	}
	d.raiseKind(kind)
	if req.IsUserRequired() {
		d.userRequired = true
	}
	added := d.addConstraint(req.Pattern())
	if inserted || added {
		r.queue.push(evalTask{dest: req})
		if r.l.Level >= logrus.DebugLevel {
			r.l.WithFields(logrus.Fields{
				"pkg":  req.ID,
				"kind": d.Kind.String(),
			}).Debug("queued package for evaluation")
		}
	}
}

// checkCompats queues a requirement for every compat whose trigger became
// required while its obligation did not. Runs after every task so late
// triggers still surface.
func (r *resolver) checkCompats() {
	var wanting []*PackageRequest
	for _, c := range r.constraints {
		cc, ok := c.(compatConstraint)
		if !ok {
			continue
		}
		if r.isRequired(cc.trigger.ID) && !r.isRequired(cc.obligation.ID) {
			wanting = append(wanting, cc.obligation)
		}
	}
	for _, req := range wanting {
		r.updateDependency(req, KindRequire)
	}
}

// checkConstraints fails when req is banned by a refuse constraint.
func (r *resolver) checkConstraints(req *PackageRequest) error {
	refusers := r.refusersOf(req.ID)
	if len(refusers) > 0 {
		return &IncompatibleError{Req: req, Refusers: refusers}
	}
	return nil
}

// refusersOf lists the id of every package refusing id.
func (r *resolver) refusersOf(id string) []string {
	var out []string
	for _, c := range r.constraints {
		rc, ok := c.(refuseConstraint)
		if !ok || rc.target.ID != id {
			continue
		}
		if p := parentRequest(rc.target.source()); p != nil {
			out = append(out, p.ID)
		} else {
			out = append(out, "user-refused")
		}
	}
	return out
}

func (r *resolver) isRequired(id string) bool {
	_, has := r.deps[id]
	return has
}

// userRequired reports whether id is already required by direct user
// intent, through nothing but bundling.
func (r *resolver) userRequired(id string) bool {
	d, has := r.deps[id]
	return has && d.userRequired
}

func (r *resolver) compatExists(trigger, obligation string) bool {
	for _, c := range r.constraints {
		if cc, ok := c.(compatConstraint); ok && cc.trigger.ID == trigger && cc.obligation.ID == obligation {
			return true
		}
	}
	return false
}

// finish walks the accumulated constraints for end-of-run obligations and
// assembles the deterministic result.
func (r *resolver) finish() (*ResolutionResult, error) {
	var unfulfilled []UnfulfilledRecommendation
	for _, c := range r.constraints {
		switch con := c.(type) {
		case recommendConstraint:
			if con.invert {
				if r.isRequired(con.target.ID) {
					unfulfilled = append(unfulfilled, UnfulfilledRecommendation{Req: con.target, Invert: true})
				}
			} else if !r.isRequired(con.target.ID) {
				unfulfilled = append(unfulfilled, UnfulfilledRecommendation{Req: con.target})
			}
		case extendConstraint:
			if !r.isRequired(con.target.ID) {
				return nil, &ExtensionError{
					Source: requirementParent(con.target.source()),
					Req:    con.target,
				}
			}
		}
	}

	pkgs := make([]*PackageRequest, 0, len(r.deps))
	for _, d := range r.deps {
		if d.evalFailed {
			continue
		}
		pkgs = append(pkgs, d.Pkg)
	}
	sortRequests(pkgs)

	if r.l.Level >= logrus.InfoLevel {
		r.l.WithFields(logrus.Fields{
			"packages":        len(pkgs),
			"recommendations": len(unfulfilled),
		}).Info("resolution complete")
	}

	return &ResolutionResult{Packages: pkgs, UnfulfilledRecommendations: unfulfilled}, nil
}
