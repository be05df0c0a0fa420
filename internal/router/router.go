// Package router implements the pattern-based routing table (spec §4.5):
// an exact-match index plus a priority-sorted list of compiled glob routes,
// with a bounded memoized cache for find_all_routes lookups.
package router

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/tenzoki/ipcbus/internal/errs"
)

// Route is a single routing table entry (spec §3: pattern, target endpoint
// id, priority, creation timestamp).
type Route struct {
	Pattern   string
	Endpoint  string
	Priority  int
	CreatedAt time.Time
}

type globRoute struct {
	route Route
	re    *regexp.Regexp
}

// Router maps routing keys to ranked endpoint routes.
type Router struct {
	mu    sync.RWMutex
	exact map[string]Route
	globs []globRoute
	cache *ristretto.Cache[string, []Route]
}

// New builds an empty Router with a bounded routing-key cache of the given
// approximate entry capacity.
func New(cacheCapacity int64) (*Router, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []Route]{
		NumCounters: cacheCapacity * 10,
		MaxCost:     cacheCapacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Router{
		exact: make(map[string]Route),
		cache: cache,
	}, nil
}

// Register inserts a route. Empty patterns are rejected. Exact patterns
// (those without glob metacharacters) must be unique; glob patterns are
// compiled and inserted into the priority-sorted list, ties broken by
// earlier creation time (spec §4.5).
func (r *Router) Register(pattern, endpoint string, priority int) error {
	if pattern == "" {
		return &errs.InvalidPattern{Cause: errs.ErrInvalidEnvelope}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	route := Route{Pattern: pattern, Endpoint: endpoint, Priority: priority, CreatedAt: time.Now()}

	if !isGlob(pattern) {
		if _, exists := r.exact[pattern]; exists {
			return errs.ErrRouteExists
		}
		r.exact[pattern] = route
		r.invalidateCache()
		return nil
	}

	re, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	r.globs = append(r.globs, globRoute{route: route, re: re})
	sort.SliceStable(r.globs, func(i, j int) bool {
		a, b := r.globs[i].route, r.globs[j].route
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	r.invalidateCache()
	return nil
}

// Remove deletes the exact or glob route registered under pattern.
func (r *Router) Remove(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !isGlob(pattern) {
		if _, exists := r.exact[pattern]; !exists {
			return errs.ErrRouteNotFound
		}
		delete(r.exact, pattern)
		r.invalidateCache()
		return nil
	}

	for i, g := range r.globs {
		if g.route.Pattern == pattern {
			r.globs = append(r.globs[:i], r.globs[i+1:]...)
			r.invalidateCache()
			return nil
		}
	}
	return errs.ErrRouteNotFound
}

// FindRoute returns the single best route for key: the exact match if
// present, else the first matching glob route by priority/creation order.
// The second return value is false if nothing matches.
func (r *Router) FindRoute(key string) (Route, bool) {
	routes := r.FindAllRoutes(key)
	if len(routes) == 0 {
		return Route{}, false
	}
	return routes[0], true
}

// FindAllRoutes returns every matching route in priority-descending order,
// the exact match (if any) first among equal priorities. Results are
// memoized in the bounded cache; any mutating call invalidates it.
func (r *Router) FindAllRoutes(key string) []Route {
	if cached, ok := r.cache.Get(key); ok {
		return cached
	}

	r.mu.RLock()
	var matches []Route
	if exact, ok := r.exact[key]; ok {
		matches = append(matches, exact)
	}
	for _, g := range r.globs {
		if g.re.MatchString(key) {
			matches = append(matches, g.route)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		// exact routes carry no glob regexp; treat as earliest among ties
		// only when priorities are equal, per spec §8 invariant 7.
		iExact := !isGlob(matches[i].Pattern)
		jExact := !isGlob(matches[j].Pattern)
		if iExact != jExact {
			return iExact
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	r.cache.Set(key, matches, 1)
	r.cache.Wait()
	return matches
}

func (r *Router) invalidateCache() {
	r.cache.Clear()
}
