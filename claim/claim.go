// Package claim implements priority-ceiling locking of resources shared
// between interrupt priorities.
//
// Every resource has a ceiling: the highest priority of any task that
// touches it. A task running below the ceiling accesses the resource by
// claiming it, which raises the interrupt mask to the ceiling for the
// duration of the access. No task that could touch the resource can
// preempt the claim, so the access needs no other synchronization.
//
// Ceilings are not assigned by hand. A resource is declared with the
// priorities of its users and the ceiling is their maximum; a claim from
// any other priority panics, because it would reveal a user the ceiling
// does not account for.
package claim

import (
	"fmt"
	"slices"
)

// Priority is a logical interrupt priority. Higher values are more
// urgent; 0 is the idle loop.
type Priority uint8

// Mask models the interrupt priority mask: while set to p, interrupts of
// priority p and below are held pending.
type Mask interface {
	Get() Priority
	Set(p Priority)
}

// Threshold is the token passed to a running task. It records the task's
// priority and the ceiling it currently holds. Thresholds are passed by
// value so that interrupt handlers never allocate.
type Threshold struct {
	mask  Mask
	task  Priority
	value Priority
}

// NewThreshold returns the threshold of a task running at priority p.
// Interrupt dispatchers create one per handler invocation.
func NewThreshold(m Mask, p Priority) Threshold {
	return Threshold{mask: m, task: p, value: p}
}

// Task returns the priority of the running task.
func (t Threshold) Task() Priority {
	return t.task
}

// Value returns the effective priority: the task priority, or the
// ceiling of the innermost claim.
func (t Threshold) Value() Priority {
	return t.value
}

// Resource is a value shared between tasks of different priorities.
type Resource[T any] struct {
	name    string
	users   []Priority
	ceiling Priority
	value   T
}

// NewResource declares a resource accessed by tasks of the given
// priorities.
func NewResource[T any](name string, v T, users ...Priority) *Resource[T] {
	if len(users) == 0 {
		panic(fmt.Sprintf("claim: resource %s has no users", name))
	}
	return &Resource[T]{
		name:    name,
		users:   slices.Clone(users),
		ceiling: slices.Max(users),
		value:   v,
	}
}

func (r *Resource[T]) Name() string {
	return r.name
}

func (r *Resource[T]) Ceiling() Priority {
	return r.ceiling
}

// enter checks t against the declared users and raises the mask to the
// ceiling when t is below it. It returns the threshold for the claim
// body and the mask to restore, if raised.
func (r *Resource[T]) enter(t Threshold) (inner Threshold, old Priority, raised bool) {
	if !slices.Contains(r.users, t.task) {
		panic(fmt.Sprintf("claim: priority %d is not a declared user of %s (ceiling %d)", t.task, r.name, r.ceiling))
	}
	if t.value >= r.ceiling {
		return t, 0, false
	}
	old = t.mask.Get()
	t.mask.Set(r.ceiling)
	return Threshold{mask: t.mask, task: t.task, value: r.ceiling}, old, true
}

// Claim runs f with exclusive access to the resource. Claims nest: an
// inner claim of a higher ceiling raises the mask further and restores
// the outer ceiling when it returns. A claim never lowers the mask.
func Claim[T any](r *Resource[T], t Threshold, f func(v *T, t Threshold)) {
	inner, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	f(&r.value, inner)
}

// ClaimValue is like Claim but returns the result of f.
func ClaimValue[T, R any](r *Resource[T], t Threshold, f func(v *T, t Threshold) R) R {
	inner, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	return f(&r.value, inner)
}

// ClaimWith is like Claim but passes arg to f. Interrupt handlers use it
// with function literals that capture nothing, which don't allocate.
func ClaimWith[T, A any](r *Resource[T], t Threshold, arg A, f func(v *T, t Threshold, arg A)) {
	inner, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	f(&r.value, inner, arg)
}

// ClaimValueWith is like ClaimWith but returns the result of f.
func ClaimValueWith[T, A, R any](r *Resource[T], t Threshold, arg A, f func(v *T, t Threshold, arg A) R) R {
	inner, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	return f(&r.value, inner, arg)
}

// Load returns a copy of the resource value.
func Load[T any](r *Resource[T], t Threshold) T {
	_, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	return r.value
}

// Store replaces the resource value.
func Store[T any](r *Resource[T], t Threshold, v T) {
	_, old, raised := r.enter(t)
	if raised {
		defer t.mask.Set(old)
	}
	r.value = v
}

// HardwarePriority maps p to an NVIC priority register value for a core
// implementing bits priority bits. Logical priority 1 is the least urgent
// hardware level.
func HardwarePriority(p Priority, bits uint8) uint8 {
	levels := Priority(1) << bits
	if p == 0 || p >= levels {
		panic(fmt.Sprintf("claim: priority %d out of range 1-%d", p, levels-1))
	}
	return uint8(levels-p) << (8 - bits)
}
