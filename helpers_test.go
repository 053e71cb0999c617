package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks in deadline order on
// the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fn()
	}
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeUser struct {
	id       string
	email    string
	password string
	fullName string
}

// fakeBackend serves the blog REST API from memory.
type fakeBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	users       map[string]fakeUser
	posts       []RawPost
	expiresIn   float64
	noToken     bool
	failDelete  bool
	failList    bool
	requests    []string
	lastAuth    string
	lastForm    map[string]string
	lastFile    string
	lastFileLen int
	lastJSON    map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		users:     make(map[string]fakeUser),
		expiresIn: 3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/signup", b.signup)
	mux.HandleFunc("POST /user/login", b.login)
	mux.HandleFunc("GET /posts/{$}", b.listPosts)
	mux.HandleFunc("POST /posts/{$}", b.createPost)
	mux.HandleFunc("GET /posts/{id}", b.getPost)
	mux.HandleFunc("PUT /posts/{id}", b.updatePost)
	mux.HandleFunc("DELETE /posts/{id}", b.deletePost)

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.RequestURI())
		b.lastAuth = r.Header.Get("Authorization")
		b.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) URL() string {
	return b.server.URL
}

func (b *fakeBackend) addUser(email, password, fullName string) fakeUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := fakeUser{id: uuid.NewString(), email: email, password: password, fullName: fullName}
	b.users[email] = u
	return u
}

func (b *fakeBackend) addPost(title, creator string) RawPost {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := RawPost{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   title + " content",
		ImagePath: "http://localhost/images/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".png",
		Creator:   creator,
	}
	b.posts = append(b.posts, p)
	return p
}

func (b *fakeBackend) requestLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *fakeBackend) resetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

func (b *fakeBackend) authorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}

func (b *fakeBackend) postCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}

func tokenFor(u fakeUser) string {
	return "token-" + u.id
}

// caller returns the user named by the bearer token.
func (b *fakeBackend) caller(r *http.Request) (fakeUser, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if tokenFor(u) == token {
			return u, true
		}
	}
	return fakeUser{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	b.mu.Lock()
	_, exists := b.users[req.Email]
	b.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Invalid authentication credentials!"})
		return
	}
	b.addUser(req.Email, req.Password, req.FullName)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created!"})
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	b.mu.Lock()
	u, ok := b.users[req.Email]
	expiresIn, noToken := b.expiresIn, b.noToken
	b.mu.Unlock()
	if !ok || u.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid authentication credentials!"})
		return
	}
	if noToken {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Auth pending"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tokenFor(u),
		"expiresIn": expiresIn,
		"userId":    u.id,
		"fullName":  u.fullName,
	})
}

func (b *fakeBackend) listPosts(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("pagesize"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failList {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Fetching posts failed!"})
		return
	}

	posts := b.posts
	if size > 0 && page > 0 {
		start := min((page-1)*size, len(posts))
		end := min(start+size, len(posts))
		posts = posts[start:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Posts fetched successfully!",
		"posts":    posts,
		"maxPosts": len(b.posts),
	})
}

func (b *fakeBackend) createPost(w http.ResponseWriter, r *http.Request) {
	u, ok := b.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "You are not authenticated!"})
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "expected multipart"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "image missing"})
		return
	}
	data, _ := io.ReadAll(file)
	file.Close()

	b.mu.Lock()
	b.lastForm = map[string]string{"title": r.FormValue("title"), "content": r.FormValue("content")}
	b.lastFile = header.Filename
	b.lastFileLen = len(data)
	p := RawPost{
		ID:        uuid.NewString(),
		Title:     r.FormValue("title"),
		Content:   r.FormValue("content"),
		ImagePath: "http://localhost/images/" + header.Filename,
		Creator:   u.id,
	}
	b.posts = append(b.posts, p)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Post added successfully", "post": p})
}

func (b *fakeBackend) findPost(id string) (int, bool) {
	for i, p := range b.posts {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (b *fakeBackend) getPost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.findPost(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Post not found!"})
		return
	}
	writeJSON(w, http.StatusOK, b.posts[i])
}

func (b *fakeBackend) updatePost(w http.ResponseWriter, r *http.Request) {
	u, ok := b.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "You are not authenticated!"})
		return
	}

	id := r.PathValue("id")
	var title, content, imagePath string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad multipart"})
			return
		}
		_, header, err := r.FormFile("image")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "image missing"})
			return
		}
		title, content = r.FormValue("title"), r.FormValue("content")
		imagePath = "http://localhost/images/" + header.Filename
		b.mu.Lock()
		b.lastForm = map[string]string{"id": r.FormValue("id"), "title": title, "content": content}
		b.lastFile = header.Filename
		b.lastJSON = nil
		b.mu.Unlock()
	} else {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad json"})
			return
		}
		title, _ = body["title"].(string)
		content, _ = body["content"].(string)
		imagePath, _ = body["imagePath"].(string)
		b.mu.Lock()
		b.lastJSON = body
		b.lastForm = nil
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i, found := b.findPost(id)
	if !found || b.posts[i].Creator != u.id {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authorized!"})
		return
	}
	b.posts[i].Title, b.posts[i].Content, b.posts[i].ImagePath = title, content, imagePath
	writeJSON(w, http.StatusOK, map[string]string{"message": "Update successful!"})
}

func (b *fakeBackend) deletePost(w http.ResponseWriter, r *http.Request) {
	u, ok := b.caller(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Deleting post failed!"})
		return
	}
	i, found := b.findPost(r.PathValue("id"))
	if !ok || !found || b.posts[i].Creator != u.id {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authorized!"})
		return
	}
	b.posts = append(b.posts[:i], b.posts[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted!"})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *sqliteStore {
	t.Helper()
	db, err := openDB(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err = initDB(db); err != nil {
		t.Fatalf("initializing test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newSQLiteStore(db, nil)
}

func setupTestApp(t *testing.T, backend *fakeBackend) (*App, *fakeClock) {
	t.Helper()
	store := setupTestDB(t)
	clock := newFakeClock()
	cfg := Config{
		APIURL:      backend.URL(),
		PageSize:    defaultPageSize,
		HTTPTimeout: 5 * time.Second,
	}
	app, err := NewApp(cfg, store.db, clock, discardLogger())
	if err != nil {
		t.Fatalf("NewApp() error: %v", err)
	}
	return app, clock
}

// recorder collects everything published on a bus.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func record[T any](t *testing.T, bus *Bus[T]) *recorder[T] {
	t.Helper()
	r := &recorder[T]{}
	sub := bus.Subscribe(func(v T) {
		r.mu.Lock()
		r.values = append(r.values, v)
		r.mu.Unlock()
	})
	t.Cleanup(sub.Unsubscribe)
	return r
}

func (r *recorder[T]) got() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}
