package main

import (
	"context"
	"sync"
)

var pageSizeOptions = []int{1, 2, 5, 10}

// PageEvent is a page control change. PageIndex is 0-based.
type PageEvent struct {
	PageIndex int
	PageSize  int
}

type PostListState struct {
	Posts         []Post
	TotalPosts    int
	PostsPerPage  int
	CurrentPage   int
	Loading       bool
	UserID        string
	Authenticated bool
}

// CanEdit reports whether the edit and delete actions apply to p. The
// backend makes the real decision.
func (s PostListState) CanEdit(p Post) bool {
	return s.Authenticated && s.UserID != "" && p.Creator == s.UserID
}

func (s PostListState) PageCount() int {
	if s.PostsPerPage <= 0 || s.TotalPosts == 0 {
		return 1
	}
	return (s.TotalPosts + s.PostsPerPage - 1) / s.PostsPerPage
}

// PostListView is one page of posts plus the controls around it.
type PostListView struct {
	posts *PostsService
	auth  *AuthService

	mu      sync.Mutex
	state   PostListState
	closed  bool
	postSub *Subscription
	authSub *Subscription
}

func NewPostListView(posts *PostsService, auth *AuthService, pageSize int) *PostListView {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &PostListView{
		posts: posts,
		auth:  auth,
		state: PostListState{
			PostsPerPage: pageSize,
			CurrentPage:  1,
		},
	}
}

// Init subscribes before requesting the first page so the page it
// publishes is seen.
func (v *PostListView) Init(ctx context.Context) error {
	v.mu.Lock()
	v.state.Loading = true
	v.state.UserID = v.auth.UserID()
	v.state.Authenticated = v.auth.IsAuthenticated()
	v.mu.Unlock()

	v.postSub = v.posts.Updates().Subscribe(func(page PostPage) {
		v.update(func(s *PostListState) {
			s.Loading = false
			s.Posts = page.Posts
			s.TotalPosts = page.PostCount
		})
	})
	v.authSub = v.auth.AuthStatus().Subscribe(func(ok bool) {
		v.update(func(s *PostListState) {
			s.Authenticated = ok
			// The user can change across logins.
			s.UserID = v.auth.UserID()
		})
	})

	return v.fetch(ctx)
}

func (v *PostListView) ChangePage(ctx context.Context, ev PageEvent) error {
	v.update(func(s *PostListState) {
		s.Loading = true
		s.CurrentPage = ev.PageIndex + 1
		s.PostsPerPage = ev.PageSize
	})
	return v.fetch(ctx)
}

// Delete removes a post and reloads the current page. If the delete
// fails the list is left as it was.
func (v *PostListView) Delete(ctx context.Context, postID string) error {
	v.update(func(s *PostListState) { s.Loading = true })

	if err := v.posts.DeletePost(ctx, postID); err != nil {
		v.update(func(s *PostListState) { s.Loading = false })
		return err
	}
	return v.fetch(ctx)
}

// Refresh reloads the current page.
func (v *PostListView) Refresh(ctx context.Context) error {
	v.update(func(s *PostListState) { s.Loading = true })
	return v.fetch(ctx)
}

func (v *PostListView) fetch(ctx context.Context) error {
	v.mu.Lock()
	size, page := v.state.PostsPerPage, v.state.CurrentPage
	v.mu.Unlock()

	if err := v.posts.GetPosts(ctx, size, page); err != nil {
		v.update(func(s *PostListState) { s.Loading = false })
		return err
	}
	return nil
}

func (v *PostListView) update(fn func(*PostListState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	fn(&v.state)
}

func (v *PostListView) State() PostListState {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	s.Posts = clonePosts(v.state.Posts)
	return s
}

func (v *PostListView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.postSub.Unsubscribe()
	v.authSub.Unsubscribe()
}
