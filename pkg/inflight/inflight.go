// Package inflight deduplicates concurrent work per distribution identity.
//
// A [Registry] is scoped to a single run. The first caller for a key
// performs the work; callers arriving while it is still running attach to
// the same outcome. Once the work settles the key is forgotten, so a later
// call starts fresh (by then the result is normally in the artifact cache).
//
// Synchronization is per key: unrelated identities never wait on each other.
package inflight

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry tracks in-flight work producing values of type T.
// The zero value is not usable; call [New].
type Registry[T any] struct {
	group singleflight.Group

	mu     sync.Mutex
	active map[string]int
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{active: make(map[string]int)}
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call's result. shared reports whether the result
// was delivered to more than one caller.
//
// fn runs under the context of the caller that started it. A waiter whose
// own ctx is cancelled stops waiting and returns ctx.Err() without
// affecting the running call.
func (r *Registry[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (v T, shared bool, err error) {
	ch := r.group.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	r.enter(key)
	defer r.leave(key)

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		// A nil interface result arrives as an untyped nil.
		v, _ = res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Active returns the keys that currently have at least one caller, sorted.
func (r *Registry[T]) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.active))
	for k := range r.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry[T]) enter(key string) {
	r.mu.Lock()
	r.active[key]++
	r.mu.Unlock()
}

func (r *Registry[T]) leave(key string) {
	r.mu.Lock()
	if r.active[key]--; r.active[key] <= 0 {
		delete(r.active, key)
	}
	r.mu.Unlock()
}
