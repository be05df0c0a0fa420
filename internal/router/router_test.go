package router

import (
	"errors"
	"testing"

	"github.com/tenzoki/ipcbus/internal/errs"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(1024)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestRegisterAndFindExact(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("foo", "e1", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	route, ok := r.FindRoute("foo")
	if !ok || route.Endpoint != "e1" {
		t.Fatalf("expected e1, got %+v ok=%v", route, ok)
	}
	if err := r.Remove("foo"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := r.FindRoute("foo"); ok {
		t.Fatalf("expected no route after remove")
	}
}

func TestRegisterDuplicateExactFails(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("foo", "e1", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err := r.Register("foo", "e2", 0)
	if !errors.Is(err, errs.ErrRouteExists) {
		t.Fatalf("expected ErrRouteExists, got %v", err)
	}
}

func TestPriorityOrdering(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("k*", "low", 5); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register("key", "high", 10); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	route, ok := r.FindRoute("key")
	if !ok || route.Endpoint != "high" {
		t.Fatalf("expected high priority exact match, got %+v ok=%v", route, ok)
	}
}

func TestExactBeatsGlobOnEqualPriority(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("f*", "glob", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register("foo", "exact", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	route, ok := r.FindRoute("foo")
	if !ok || route.Endpoint != "exact" {
		t.Fatalf("expected exact route to win, got %+v ok=%v", route, ok)
	}
}

func TestFindAllRoutesReturnsEveryMatch(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("events.*", "a", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register("events.user.*", "b", 1); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	routes := r.FindAllRoutes("events.user.created")
	if len(routes) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(routes), routes)
	}
	if routes[0].Endpoint != "b" {
		t.Fatalf("expected higher priority route first, got %+v", routes[0])
	}
}

func TestRemoveUnknownPatternFails(t *testing.T) {
	r := newRouter(t)
	err := r.Remove("missing")
	if !errors.Is(err, errs.ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestUnterminatedClassTreatedAsLiteral(t *testing.T) {
	r := newRouter(t)
	err := r.Register("[unterminated", "e1", 0)
	if err != nil {
		t.Fatalf("unexpected error for unterminated class treated as literal: %v", err)
	}
}

func TestEmptyPatternRejected(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("", "e1", 0); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}

func TestCacheInvalidatedOnMutation(t *testing.T) {
	r := newRouter(t)
	if err := r.Register("foo", "e1", 0); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	r.FindAllRoutes("foo")
	if err := r.Register("fo?", "e2", 5); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	routes := r.FindAllRoutes("foo")
	if len(routes) != 2 {
		t.Fatalf("expected cache to reflect new route, got %d: %+v", len(routes), routes)
	}
}
