package main

import "sync"

type HeaderState struct {
	Authenticated bool
	UserName      string
}

// HeaderView shows whether someone is logged in and who.
type HeaderView struct {
	auth *AuthService

	mu        sync.Mutex
	state     HeaderState
	closed    bool
	statusSub *Subscription
	nameSub   *Subscription
}

func NewHeaderView(auth *AuthService) *HeaderView {
	return &HeaderView{auth: auth}
}

// Init reads the current auth state, then follows later changes.
func (v *HeaderView) Init() {
	v.mu.Lock()
	v.state.UserName = v.auth.UserName()
	v.state.Authenticated = v.auth.IsAuthenticated()
	v.mu.Unlock()

	v.nameSub = v.auth.UserNames().Subscribe(func(name string) {
		v.update(func(s *HeaderState) { s.UserName = name })
	})
	v.statusSub = v.auth.AuthStatus().Subscribe(func(ok bool) {
		v.update(func(s *HeaderState) { s.Authenticated = ok })
	})
}

func (v *HeaderView) update(fn func(*HeaderState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	fn(&v.state)
}

func (v *HeaderView) Logout() {
	v.auth.Logout()
}

func (v *HeaderView) State() HeaderState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Close stops following auth changes.
func (v *HeaderView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.statusSub.Unsubscribe()
	v.nameSub.Unsubscribe()
}
