package main

import (
	"strings"
	"sync"
)

const (
	routeHome   = "/"
	routeLogin  = "/login"
	routeSignup = "/signup"
	routeCreate = "/create"
	routeEdit   = "/edit/"
)

func editRoute(postID string) string {
	return routeEdit + postID
}

// Navigator moves the client to another screen.
type Navigator interface {
	Navigate(route string)
}

type authChecker interface {
	IsAuthenticated() bool
}

// Router tracks the current route. Routes that change posts are guarded
// and send unauthenticated users to the login screen instead.
type Router struct {
	mu      sync.Mutex
	current string
	auth    authChecker
	changes Bus[string]
}

func NewRouter() *Router {
	return &Router{current: routeHome}
}

// Guard sets the auth state consulted for protected routes.
func (r *Router) Guard(auth authChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = auth
}

func (r *Router) Navigate(route string) {
	r.mu.Lock()
	if requiresAuth(route) && (r.auth == nil || !r.auth.IsAuthenticated()) {
		route = routeLogin
	}
	r.current = route
	r.mu.Unlock()

	r.changes.Publish(route)
}

func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Changes publishes every route navigated to, after guarding.
func (r *Router) Changes() *Bus[string] {
	return &r.changes
}

func requiresAuth(route string) bool {
	return route == routeCreate || strings.HasPrefix(route, routeEdit)
}
