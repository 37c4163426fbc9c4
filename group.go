package mend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Member is a task that can take part in a group. It is implemented by
// *Task[T] for any T, so one group can mix tasks with different result types.
type Member interface {
	ID() string

	attach(g *groupContext) error
	detach(g *groupContext)
	execute(ctx context.Context) error
	abandon()
	recheck() bool
	compensatesOnFailure() bool
	revertForGroup(ctx context.Context) error
	config() *Config
}

// groupContext is shared by the members of one group run.
type groupContext struct {
	id         string
	sequential bool
	members    []Member
	cfg        *Config

	// halt is closed when the group starts rolling back; members stop retrying.
	halt     chan struct{}
	haltOnce sync.Once
}

func (g *groupContext) stop() {
	g.haltOnce.Do(func() { close(g.halt) })
}

// All runs tasks concurrently as one all-or-nothing unit and returns their
// values in input order. If any task cannot succeed every task is reverted.
func All[T any](ctx context.Context, tasks []*Task[T]) ([]T, error) {
	return runAll(ctx, tasks, false)
}

// AllSequential is All with members run one after the other in input order.
// Execution stops at the first member that cannot succeed.
func AllSequential[T any](ctx context.Context, tasks []*Task[T]) ([]T, error) {
	return runAll(ctx, tasks, true)
}

// RunGroup runs members of possibly different result types concurrently as
// one all-or-nothing unit. Values are read from each task's Await afterwards.
func RunGroup(ctx context.Context, members ...Member) error {
	return coordinate(ctx, members, false)
}

// RunGroupSequential is RunGroup with members run in order.
func RunGroupSequential(ctx context.Context, members ...Member) error {
	return coordinate(ctx, members, true)
}

func runAll[T any](ctx context.Context, tasks []*Task[T], sequential bool) ([]T, error) {
	members := make([]Member, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, programmerError(fmt.Sprintf("group member %d is nil", i))
		}
		members[i] = t
	}
	if err := coordinate(ctx, members, sequential); err != nil {
		return nil, err
	}

	out := make([]T, len(tasks))
	for i, t := range tasks {
		out[i] = t.value
	}
	return out, nil
}

func coordinate(ctx context.Context, members []Member, sequential bool) error {
	if len(members) == 0 {
		return nil
	}

	g := &groupContext{
		id:         uuid.NewString(),
		sequential: sequential,
		members:    slices.Clone(members),
		halt:       make(chan struct{}),
	}
	if err := g.attach(); err != nil {
		return err
	}
	g.cfg = g.members[0].config()

	mode := "concurrently"
	if sequential {
		mode = "sequentially"
	}
	g.cfg.debugf("group %s with %d tasks is being executed %s...", g.id, len(g.members), mode)

	failed := g.execute(ctx)
	if failed != nil && errors.Is(failed, ErrFatalNotReverted) {
		g.stop()
		g.cfg.errorf("fatal error: group %s has a task that could not be reverted, escalating: %v", g.id, failed)
		return g.finish(&Error{Outcome: OutcomeFatalNotReverted, GroupID: g.id, Err: memberCause(failed)})
	}

	if failed == nil {
		failed = g.recheck()
		if failed == nil {
			g.cfg.debugf("group %s succeeded", g.id)
			return g.finish(nil)
		}
		g.cfg.infof("group %s: some tasks couldn't succeed even after retries, proceeding to revert all...", g.id)
	} else {
		g.cfg.infof("group %s: an error occurred in at least one task, proceeding to revert all...", g.id)
	}

	return g.rollback(ctx, memberCause(failed))
}

// attach binds every member to g, or none of them.
func (g *groupContext) attach() error {
	seen := make(map[Member]struct{}, len(g.members))
	for i, m := range g.members {
		if m == nil {
			g.detachFirst(i)
			return programmerError(fmt.Sprintf("group member %d is nil", i))
		}
		if _, dup := seen[m]; dup {
			g.detachFirst(i)
			return programmerError(fmt.Sprintf("task %s appears more than once in the group", m.ID()))
		}
		seen[m] = struct{}{}
		if err := m.attach(g); err != nil {
			g.detachFirst(i)
			return err
		}
	}
	return nil
}

func (g *groupContext) detachFirst(n int) {
	for _, m := range g.members[:n] {
		m.detach(g)
	}
}

// execute runs the forward phase and returns the first member error.
func (g *groupContext) execute(ctx context.Context) error {
	errs := make([]error, len(g.members))

	if g.sequential {
		for i, m := range g.members {
			if err := m.execute(ctx); err != nil {
				errs[i] = err
				for _, rest := range g.members[i+1:] {
					rest.abandon()
				}
				break
			}
		}
	} else {
		var eg errgroup.Group
		for i, m := range g.members {
			i, m := i, m
			eg.Go(func() error {
				if err := m.execute(ctx); err != nil {
					errs[i] = err
					g.stop()
				}
				return nil
			})
		}
		_ = eg.Wait()
	}

	// a fatal member wins over plain failures
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, ErrFatalNotReverted) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// recheck evaluates every member's predicate once more on its final value.
func (g *groupContext) recheck() error {
	var failed error
	for _, m := range g.members {
		if !m.recheck() {
			failed = multierr.Append(failed, fmt.Errorf("task %s did not succeed", m.ID()))
		}
	}
	return failed
}

// rollback halts the group and reverts every member, last to first.
func (g *groupContext) rollback(ctx context.Context, cause error) error {
	g.stop()

	compensable := slices.ContainsFunc(g.members, Member.compensatesOnFailure)
	if !compensable {
		g.cfg.infof("group %s failed, none of its tasks revert on failure", g.id)
		return g.finish(&Error{Outcome: OutcomeFailed, GroupID: g.id, Err: cause})
	}

	rctx := context.WithoutCancel(ctx)
	errs := make([]error, len(g.members))
	var eg errgroup.Group
	for i := len(g.members) - 1; i >= 0; i-- {
		i := i
		m := g.members[i]
		eg.Go(func() error {
			if err := m.revertForGroup(rctx); err != nil {
				errs[i] = fmt.Errorf("task %s: %w", m.ID(), err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if revertErr := multierr.Combine(errs...); revertErr != nil {
		g.cfg.errorf("fatal error: group %s failed to revert all: %v", g.id, revertErr)
		return g.finish(&Error{Outcome: OutcomeFatalNotReverted, GroupID: g.id, Err: multierr.Append(cause, revertErr)})
	}
	g.cfg.infof("group %s: all tasks were reverted successfully", g.id)
	return g.finish(&Error{Outcome: OutcomeFailedAndReverted, GroupID: g.id, Err: cause})
}

func (g *groupContext) finish(err error) error {
	o := OutcomeOf(err)
	g.cfg.emit(Event{Type: EventGroupOutcome, GroupID: g.id, Size: len(g.members), Outcome: o, Err: err})
	return err
}

// memberCause strips a member's *Error so the group error carries a single outcome.
func memberCause(err error) error {
	var me *Error
	if !errors.As(err, &me) {
		return err
	}
	if me.Err == nil {
		return fmt.Errorf("task %s: %s", me.TaskID, me.Outcome)
	}
	return fmt.Errorf("task %s: %w", me.TaskID, me.Err)
}

// Member implementation for Task.

func (t *Task[T]) attach(g *groupContext) error {
	if t == nil {
		return programmerError("group member is nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return programmerError(fmt.Sprintf("task %s was already awaited and can't join a group", t.id))
	}
	if t.group != nil {
		return programmerError(fmt.Sprintf("task %s already belongs to group %s", t.id, t.group.id))
	}
	t.group = g
	return nil
}

func (t *Task[T]) detach(g *groupContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.group == g {
		t.group = nil
	}
}

func (t *Task[T]) execute(ctx context.Context) error {
	_, err := t.Await(ctx)
	return err
}

// abandon settles a member that never ran because its group stopped early.
func (t *Task[T]) abandon() {
	t.once.Do(func() {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
		t.err = t.fail(OutcomeFailed, errHalted)
		close(t.done)
	})
}

func (t *Task[T]) recheck() bool {
	<-t.done
	if t.err != nil {
		return false
	}
	ok, err := t.check(t.value)
	if err != nil {
		t.cfg.errorf("task %s caught a panic while re-checking its success predicate: %v", t.id, err)
		return false
	}
	return ok
}

func (t *Task[T]) compensatesOnFailure() bool { return t.revertOnFailure }

func (t *Task[T]) revertForGroup(ctx context.Context) error {
	if !t.revertOnFailure {
		t.cfg.debugf("task %s is not reverted by group %s because it was created with NoRevert", t.id, t.groupID())
		return nil
	}
	return t.revertOnce(ctx, int(t.policy.MaxRevertAttempts))
}

func (t *Task[T]) config() *Config { return t.cfg }
