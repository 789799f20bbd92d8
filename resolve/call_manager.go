package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sdboyer/constext"
)

type timeCount struct {
	count int
	start time.Time
}

type durCount struct {
	count int
	dur   time.Duration
}

// callManager tracks every in-flight repository call so the registry can
// cancel them all at once and block its teardown until they drain. Each
// call runs under a context conjoining the caller's context with the
// manager's lifetime context.
type callManager struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.Mutex // Guards all maps
	cond       sync.Cond  // Wraps mu so callers can wait until all calls end
	running    map[callInfo]timeCount
	ran        map[callType]durCount
}

func newCallManager(ctx context.Context) *callManager {
	ctx, cf := context.WithCancel(ctx)
	cm := &callManager{
		ctx:        ctx,
		cancelFunc: cf,
		running:    make(map[callInfo]timeCount),
		ran:        make(map[callType]durCount),
	}

	cm.cond = sync.Cond{L: &cm.mu}
	return cm
}

// do executes the incoming closure using a conjoined context, and keeps
// counters to ensure the registry can't finish Release()ing until after all
// calls have returned.
func (cm *callManager) do(inctx context.Context, name string, typ callType, f func(context.Context) error) error {
	ci := callInfo{
		name: name,
		typ:  typ,
	}

	octx, err := cm.start(ci)
	if err != nil {
		return err
	}

	cctx, cancelFunc := constext.Cons(inctx, octx)
	err = f(cctx)
	cm.done(ci)
	cancelFunc()
	return err
}

func (cm *callManager) getLifetimeContext() context.Context {
	return cm.ctx
}

func (cm *callManager) start(ci callInfo) (context.Context, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.ctx.Err() != nil {
		// We've already been canceled; error out.
		return nil, cm.ctx.Err()
	}

	if existingInfo, has := cm.running[ci]; has {
		existingInfo.count++
		cm.running[ci] = existingInfo
	} else {
		cm.running[ci] = timeCount{
			count: 1,
			start: time.Now(),
		}
	}

	return cm.ctx, nil
}

func (cm *callManager) count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.running)
}

func (cm *callManager) done(ci callInfo) {
	cm.mu.Lock()

	existingInfo, has := cm.running[ci]
	if !has {
		panic(fmt.Sprintf("registry: tried to complete a call that was never started"))
	}

	if existingInfo.count > 1 {
		// If more than one is pending, don't stop the clock yet.
		existingInfo.count--
		cm.running[ci] = existingInfo
	} else {
		// Last one for this particular key; update metrics with info.
		durCnt := cm.ran[ci.typ]
		durCnt.count++
		durCnt.dur += time.Now().Sub(existingInfo.start)
		cm.ran[ci.typ] = durCnt
		delete(cm.running, ci)

		if len(cm.running) == 0 {
			// This is the only place where we signal the cond, as it's the only
			// time that the number of running calls could become zero.
			cm.cond.Signal()
		}
	}
	cm.mu.Unlock()
}

// wait until all active calls have terminated.
//
// Assumes something else has already canceled the manager via its context.
func (cm *callManager) wait() {
	cm.cond.L.Lock()
	for len(cm.running) > 0 {
		cm.cond.Wait()
	}
	cm.cond.L.Unlock()
}

type callType uint

const (
	ctQueryPackage callType = iota
	ctListEntries
	ctRefreshIndex
)

// callInfo provides metadata about an ongoing call.
type callInfo struct {
	name string
	typ  callType
}
