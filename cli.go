package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

type runFunc func(ctx context.Context, app *App, args []string, out io.Writer) error

type command struct {
	name    string
	summary string
	// setup registers the command's flags and returns its body.
	setup func(fs *pflag.FlagSet) runFunc
}

var commands = []command{
	{"tui", "interactive terminal client (default)", tuiCommand},
	{"signup", "create an account", signupCommand},
	{"login", "log in and store the session", loginCommand},
	{"logout", "end the stored session", logoutCommand},
	{"whoami", "show the stored session", whoamiCommand},
	{"list", "list one page of posts", listCommand},
	{"show", "show one post as the backend returns it", showCommand},
	{"create", "create a post with an image", createCommand},
	{"update", "update a post", updateCommand},
	{"delete", "delete a post", deleteCommand},
}

func run(ctx context.Context, args []string, cfg Config, out io.Writer) error {
	name := "tui"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		printUsage(out)
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q (see \"blog help\")", name)
	}

	fs := pflag.NewFlagSet("blog "+name, pflag.ContinueOnError)
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "backend base URL")
	fs.StringVar(&cfg.SessionDB, "session-db", cfg.SessionDB, "session database path")
	body := cmd.setup(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, closeLog, err := newLogger(cfg, name == "tui")
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := openDB(cfg.SessionDB)
	if err != nil {
		return fmt.Errorf("opening session database: %w", err)
	}
	defer db.Close()

	if err = initDB(db); err != nil {
		return fmt.Errorf("initializing session database: %w", err)
	}

	app, err := NewApp(cfg, db, realClock{}, logger)
	if err != nil {
		return err
	}
	app.auth.AutoAuthUser()

	return body(ctx, app, fs.Args(), out)
}

func printUsage(out io.Writer) {
	fmt.Fprintf(out, "Terminal client for the blog.\n\nUsage:\n  blog [command] [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(out, "\nRun \"blog <command> --help\" for the flags of a command.\n")
}

// newLogger logs to BLOG_LOG_FILE when set. Otherwise the CLI warns on
// stderr and the TUI, which owns the terminal, discards.
func newLogger(cfg Config, interactive bool) (*slog.Logger, func(), error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		return slog.New(handler), func() { f.Close() }, nil
	}
	if interactive {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	return slog.New(handler), func() {}, nil
}

// errorRecorder keeps the last request failure so commands built on
// services that swallow errors can still explain what went wrong.
type errorRecorder struct {
	mu  sync.Mutex
	err error
	sub *Subscription
}

func recordErrors(c *Client) *errorRecorder {
	r := &errorRecorder{}
	r.sub = c.Errors().Subscribe(func(err error) {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	})
	return r
}

func (r *errorRecorder) last() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *errorRecorder) failure(what string) error {
	if err := r.last(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return errors.New(what)
}

func (r *errorRecorder) stop() {
	r.sub.Unsubscribe()
}

func tuiCommand(fs *pflag.FlagSet) runFunc {
	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		return runTUI(ctx, app)
	}
}

func signupCommand(fs *pflag.FlagSet) runFunc {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")
	fullName := fs.String("name", "", "full name shown on posts")

	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if *email == "" || *fullName == "" {
			return errors.New("--email and --name are required")
		}
		pw, err := passwordOrPrompt(*password, out)
		if err != nil {
			return err
		}

		rec := recordErrors(app.client)
		defer rec.stop()

		app.auth.CreateUser(ctx, *email, pw, *fullName)
		if rec.last() != nil {
			return rec.failure("signup failed")
		}

		fmt.Fprintf(out, "Account created. Log in with: blog login --email %s\n", *email)
		return nil
	}
}

func loginCommand(fs *pflag.FlagSet) runFunc {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")

	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if *email == "" {
			return errors.New("--email is required")
		}
		pw, err := passwordOrPrompt(*password, out)
		if err != nil {
			return err
		}

		rec := recordErrors(app.client)
		defer rec.stop()

		app.auth.Login(ctx, *email, pw)
		if rec.last() != nil || !app.auth.IsAuthenticated() {
			return rec.failure("login failed")
		}

		fmt.Fprintf(out, "Logged in as %s (session ends %s)\n",
			app.auth.UserName(), app.auth.ExpiresAt().Local().Format(time.RFC1123))
		return nil
	}
}

func logoutCommand(fs *pflag.FlagSet) runFunc {
	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		app.auth.Logout()
		fmt.Fprintln(out, "Logged out")
		return nil
	}
}

func whoamiCommand(fs *pflag.FlagSet) runFunc {
	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if !app.auth.IsAuthenticated() {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}
		fmt.Fprintf(out, "%s (user %s), session ends %s\n",
			app.auth.UserName(), app.auth.UserID(), app.auth.ExpiresAt().Local().Format(time.RFC1123))
		return nil
	}
}

func listCommand(fs *pflag.FlagSet) runFunc {
	pageSize := fs.Int("page-size", 0, "posts per page (default BLOG_PAGE_SIZE)")
	page := fs.Int("page", 1, "page number, starting at 1")

	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		size := *pageSize
		if size <= 0 {
			size = app.cfg.PageSize
		}
		if *page < 1 {
			return errors.New("--page starts at 1")
		}

		var got PostPage
		sub := app.posts.Updates().Subscribe(func(p PostPage) { got = p })
		defer sub.Unsubscribe()

		if err := app.posts.GetPosts(ctx, size, *page); err != nil {
			return err
		}

		state := PostListState{
			Posts:         got.Posts,
			TotalPosts:    got.PostCount,
			PostsPerPage:  size,
			CurrentPage:   *page,
			UserID:        app.auth.UserID(),
			Authenticated: app.auth.IsAuthenticated(),
		}
		printPostList(out, state)
		return nil
	}
}

func printPostList(out io.Writer, s PostListState) {
	fmt.Fprintf(out, "Page %d of %d (%d posts)\n", s.CurrentPage, s.PageCount(), s.TotalPosts)
	if len(s.Posts) == 0 {
		fmt.Fprintln(out, "No posts added yet!")
		return
	}
	for _, p := range s.Posts {
		mine := ""
		if s.CanEdit(p) {
			mine = " (yours)"
		}
		fmt.Fprintf(out, "\n[%s] %s%s\n", p.ID, p.Title, mine)
		fmt.Fprintln(out, paragraphs(p.Content, 80, "    "))
		fmt.Fprintf(out, "    image: %s\n", p.ImagePath)
	}
}

func showCommand(fs *pflag.FlagSet) runFunc {
	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if len(args) != 1 {
			return errors.New("usage: blog show <post-id>")
		}
		post, err := app.posts.GetPost(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "_id:       %s\ntitle:     %s\ncontent:   %s\nimagePath: %s\ncreator:   %s\n",
			post.ID, post.Title, post.Content, post.ImagePath, post.Creator)
		return nil
	}
}

func createCommand(fs *pflag.FlagSet) runFunc {
	title := fs.String("title", "", "post title")
	content := fs.String("content", "", "post content")
	imagePath := fs.String("image", "", "image file to attach")

	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if err := requireLogin(app, routeCreate); err != nil {
			return err
		}
		if *title == "" || *content == "" {
			return errors.New("--title and --content are required")
		}
		if *imagePath == "" {
			return ErrInvalidImage
		}

		image, err := openImage(*imagePath)
		if err != nil {
			return err
		}
		defer image.Close()

		if err := app.posts.AddPost(ctx, *title, *content, image); err != nil {
			return err
		}
		fmt.Fprintln(out, "Post created")
		return nil
	}
}

func updateCommand(fs *pflag.FlagSet) runFunc {
	title := fs.String("title", "", "new title (default: unchanged)")
	content := fs.String("content", "", "new content (default: unchanged)")
	imagePath := fs.String("image", "", "new image file (default: keep the current image)")

	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if len(args) != 1 {
			return errors.New("usage: blog update <post-id> [flags]")
		}
		id := args[0]
		if err := requireLogin(app, editRoute(id)); err != nil {
			return err
		}

		current, err := app.posts.GetPost(ctx, id)
		if err != nil {
			return err
		}
		newTitle, newContent := current.Title, current.Content
		if *title != "" {
			newTitle = *title
		}
		if *content != "" {
			newContent = *content
		}

		image := PostImage{Path: current.ImagePath}
		if *imagePath != "" {
			f, err := openImage(*imagePath)
			if err != nil {
				return err
			}
			defer f.Close()
			image = PostImage{File: f}
		}

		if err := app.posts.UpdatePost(ctx, id, newTitle, newContent, image); err != nil {
			return err
		}
		fmt.Fprintln(out, "Post updated")
		return nil
	}
}

func deleteCommand(fs *pflag.FlagSet) runFunc {
	return func(ctx context.Context, app *App, args []string, out io.Writer) error {
		if len(args) != 1 {
			return errors.New("usage: blog delete <post-id>")
		}
		if err := app.posts.DeletePost(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, "Post deleted")
		return nil
	}
}

// requireLogin routes to a guarded screen and fails when the guard
// redirects to login.
func requireLogin(app *App, route string) error {
	app.router.Navigate(route)
	if app.router.Current() == routeLogin {
		return errors.New("log in first: blog login --email <email>")
	}
	return nil
}

// openImage opens path and checks that it holds an image.
func openImage(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidImage)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewinding image: %w", err)
	}
	return f, nil
}

func passwordOrPrompt(password string, out io.Writer) (string, error) {
	if password != "" {
		return password, nil
	}

	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
