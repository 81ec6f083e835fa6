// Package resolver implements the Maven dependency resolver facade: the
// component a project's build config hands its "maven.dependencies" list
// to in order to get back a set of local jar/model paths to fold into
// assembly. The default implementation never touches the network; it
// exists so the rest of the system has a real seam to depend on and a
// backoff policy to exercise, matching the registry-resolution pattern
// the corpus builds around cenkalti/backoff.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Dependency is one resolved Maven coordinate.
type Dependency struct {
	Coordinate string
	Path       string
}

// DependencyResolver resolves Maven coordinates against a set of
// repositories into local paths.
type DependencyResolver interface {
	Resolve(ctx context.Context, coordinates, repositories []string) ([]Dependency, error)
}

// Backend performs one resolution attempt; Resolver wraps it with
// retry/backoff and a result cache held by each Resolver.
type Backend interface {
	ResolveOnce(ctx context.Context, coordinate string, repositories []string) (Dependency, error)
}

// Resolver is the default DependencyResolver: a backoff-wrapped backend
// plus a cache keyed by coordinate+repository set, so re-resolving an
// unchanged maven block after an unrelated config reload doesn't repeat
// network or filesystem work.
type Resolver struct {
	backend Backend

	mu    sync.Mutex
	cache map[string]Dependency
}

// New returns a Resolver wrapping backend.
func New(backend Backend) *Resolver {
	return &Resolver{backend: backend, cache: make(map[string]Dependency)}
}

// Resolve resolves every coordinate, retrying transient backend errors
// with exponential backoff up to a total of 30 seconds per coordinate.
// A coordinate already resolved for this exact repository set is served
// from cache without invoking the backend again.
func (r *Resolver) Resolve(ctx context.Context, coordinates, repositories []string) ([]Dependency, error) {
	out := make([]Dependency, 0, len(coordinates))
	for _, coord := range coordinates {
		dep, err := r.resolveOne(ctx, coord, repositories)
		if err != nil {
			return nil, fmt.Errorf("resolver: resolving %s: %w", coord, err)
		}
		out = append(out, dep)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, coordinate string, repositories []string) (Dependency, error) {
	key := cacheKey(coordinate, repositories)

	r.mu.Lock()
	if dep, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return dep, nil
	}
	r.mu.Unlock()

	dep, err := backoff.Retry(ctx, func() (Dependency, error) {
		return r.backend.ResolveOnce(ctx, coordinate, repositories)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(30*time.Second))
	if err != nil {
		return Dependency{}, err
	}

	r.mu.Lock()
	r.cache[key] = dep
	r.mu.Unlock()
	return dep, nil
}

func cacheKey(coordinate string, repositories []string) string {
	key := coordinate
	for _, repo := range repositories {
		key += "|" + repo
	}
	return key
}
