package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle   = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("245"))
	sectionStyle = lipgloss.NewStyle().Padding(1, 2)
)

// opDoneMsg ends a command started with run.
type opDoneMsg struct{ err error }

type routeMsg string

type apiErrorMsg struct{ err error }

type postLoadedMsg struct {
	post *RawPost
	err  error
}

type tuiModel struct {
	ctx    context.Context
	app    *App
	header *HeaderView
	list   *PostListView
	keys   keyMap
	help   help.Model

	form    *form
	cursor  int
	pending int
	status  string
	width   int
}

// runTUI owns the terminal until the user quits. Service calls happen in
// tea.Cmd goroutines only: the router and error forwarders call
// program.Send, which must never run on the Update goroutine.
func runTUI(ctx context.Context, app *App) error {
	header := NewHeaderView(app.auth)
	header.Init()
	defer header.Close()

	list := NewPostListView(app.posts, app.auth, app.cfg.PageSize)
	defer list.Close()

	model := &tuiModel{
		ctx:    ctx,
		app:    app,
		header: header,
		list:   list,
		keys:   defaultKeyMap,
		help:   help.New(),
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	routeSub := app.router.Changes().Subscribe(func(route string) {
		program.Send(routeMsg(route))
	})
	defer routeSub.Unsubscribe()
	errSub := app.client.Errors().Subscribe(func(err error) {
		program.Send(apiErrorMsg{err})
	})
	defer errSub.Unsubscribe()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	return m.run(m.list.Init)
}

// run performs fn off the Update goroutine and reports back with opDoneMsg.
func (m *tuiModel) run(fn func(ctx context.Context) error) tea.Cmd {
	m.pending++
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{err: fn(ctx)}
	}
}

func (m *tuiModel) navigateTo(route string) tea.Cmd {
	router := m.app.router
	return func() tea.Msg {
		router.Navigate(route)
		return nil
	}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case opDoneMsg:
		m.pending--
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		m.clampCursor()
		return m, nil

	case apiErrorMsg:
		m.status = errorText(msg.err)
		return m, nil

	case routeMsg:
		return m, m.enterRoute(string(msg))

	case postLoadedMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
			return m, nil
		}
		m.form = m.editForm(msg.post)
		return m, m.form.focusField(0)

	case tea.KeyMsg:
		if m.form != nil {
			return m, m.updateForm(msg)
		}
		return m.updateList(msg)
	}

	if m.form != nil {
		return m, m.form.update(msg)
	}
	return m, nil
}

// enterRoute shows the screen for a route the router has already guarded.
func (m *tuiModel) enterRoute(route string) tea.Cmd {
	switch {
	case route == routeHome:
		m.form = nil
		return m.run(m.list.Refresh)
	case route == routeLogin:
		m.form = m.loginForm()
	case route == routeSignup:
		m.form = m.signupForm()
	case route == routeCreate:
		m.form = m.createForm()
	case strings.HasPrefix(route, routeEdit):
		id := strings.TrimPrefix(route, routeEdit)
		posts, ctx := m.app.posts, m.ctx
		return func() tea.Msg {
			post, err := posts.GetPost(ctx, id)
			return postLoadedMsg{post: post, err: err}
		}
	default:
		return nil
	}
	return m.form.focusField(0)
}

func (m *tuiModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.list.State()
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(state.Posts)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.NextPage):
		if state.CurrentPage < state.PageCount() {
			m.cursor = 0
			ev := PageEvent{PageIndex: state.CurrentPage, PageSize: state.PostsPerPage}
			return m, m.run(func(ctx context.Context) error { return m.list.ChangePage(ctx, ev) })
		}

	case key.Matches(msg, m.keys.PrevPage):
		if state.CurrentPage > 1 {
			m.cursor = 0
			ev := PageEvent{PageIndex: state.CurrentPage - 2, PageSize: state.PostsPerPage}
			return m, m.run(func(ctx context.Context) error { return m.list.ChangePage(ctx, ev) })
		}

	case key.Matches(msg, m.keys.PageSize):
		m.cursor = 0
		ev := PageEvent{PageIndex: 0, PageSize: nextPageSize(state.PostsPerPage)}
		return m, m.run(func(ctx context.Context) error { return m.list.ChangePage(ctx, ev) })

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run(m.list.Refresh)

	case key.Matches(msg, m.keys.Create):
		return m, m.navigateTo(routeCreate)

	case key.Matches(msg, m.keys.Edit):
		if post, ok := m.selected(state); ok && state.CanEdit(post) {
			return m, m.navigateTo(editRoute(post.ID))
		}

	case key.Matches(msg, m.keys.Delete):
		if post, ok := m.selected(state); ok && state.CanEdit(post) {
			return m, m.run(func(ctx context.Context) error { return m.list.Delete(ctx, post.ID) })
		}

	case key.Matches(msg, m.keys.Login):
		if !state.Authenticated {
			return m, m.navigateTo(routeLogin)
		}

	case key.Matches(msg, m.keys.Signup):
		if !state.Authenticated {
			return m, m.navigateTo(routeSignup)
		}

	case key.Matches(msg, m.keys.Logout):
		if state.Authenticated {
			header := m.header
			return m, func() tea.Msg {
				header.Logout()
				return nil
			}
		}
	}
	return m, nil
}

func (m *tuiModel) selected(state PostListState) (Post, bool) {
	if m.cursor < 0 || m.cursor >= len(state.Posts) {
		return Post{}, false
	}
	return state.Posts[m.cursor], true
}

func (m *tuiModel) clampCursor() {
	n := len(m.list.State().Posts)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func nextPageSize(current int) int {
	for i, size := range pageSizeOptions {
		if size == current {
			return pageSizeOptions[(i+1)%len(pageSizeOptions)]
		}
	}
	return pageSizeOptions[0]
}

func (m *tuiModel) updateForm(msg tea.KeyMsg) tea.Cmd {
	f := m.form
	switch {
	case msg.Type == tea.KeyCtrlC:
		return tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.form = nil
		m.status = ""
		return m.navigateTo(routeHome)
	case key.Matches(msg, m.keys.NextField):
		return f.focusField((f.focus + 1) % len(f.inputs))
	case key.Matches(msg, m.keys.PrevField):
		return f.focusField((f.focus + len(f.inputs) - 1) % len(f.inputs))
	case key.Matches(msg, m.keys.Submit):
		if f.focus < len(f.inputs)-1 {
			return f.focusField(f.focus + 1)
		}
		if missing := f.missing(); missing != "" {
			m.status = missing + " is required"
			return nil
		}
		m.status = ""
		return f.submit(f.values())
	}
	return f.update(msg)
}

func (m *tuiModel) loginForm() *form {
	auth := m.app.auth
	return newForm("Log in", []formField{
		{label: "Email", required: true},
		{label: "Password", required: true, password: true},
	}, func(v []string) tea.Cmd {
		return m.run(func(ctx context.Context) error {
			auth.Login(ctx, v[0], v[1])
			return nil
		})
	})
}

func (m *tuiModel) signupForm() *form {
	auth := m.app.auth
	return newForm("Sign up", []formField{
		{label: "Email", required: true},
		{label: "Password", required: true, password: true},
		{label: "Full name", required: true},
	}, func(v []string) tea.Cmd {
		return m.run(func(ctx context.Context) error {
			auth.CreateUser(ctx, v[0], v[1], v[2])
			return nil
		})
	})
}

func (m *tuiModel) createForm() *form {
	posts := m.app.posts
	return newForm("New post", []formField{
		{label: "Title", required: true},
		{label: "Content", required: true},
		{label: "Image file", required: true},
	}, func(v []string) tea.Cmd {
		return m.run(func(ctx context.Context) error {
			image, err := openImage(v[2])
			if err != nil {
				return err
			}
			defer image.Close()
			return posts.AddPost(ctx, v[0], v[1], image)
		})
	})
}

func (m *tuiModel) editForm(post *RawPost) *form {
	posts := m.app.posts
	id, currentImage := post.ID, post.ImagePath
	return newForm("Edit post", []formField{
		{label: "Title", value: post.Title, required: true},
		{label: "Content", value: post.Content, required: true},
		{label: "Image file", placeholder: "keep " + currentImage},
	}, func(v []string) tea.Cmd {
		return m.run(func(ctx context.Context) error {
			if v[2] == "" {
				return posts.UpdatePost(ctx, id, v[0], v[1], PostImage{Path: currentImage})
			}
			image, err := openImage(v[2])
			if err != nil {
				return err
			}
			defer image.Close()
			return posts.UpdatePost(ctx, id, v[0], v[1], PostImage{File: image})
		})
	})
}

func (m *tuiModel) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.form != nil {
		b.WriteString(sectionStyle.Render(m.form.view()))
		b.WriteString("\n")
		b.WriteString(m.statusView())
		b.WriteString(m.help.View(formKeys(m.keys)))
		return b.String()
	}

	state := m.list.State()
	b.WriteString(sectionStyle.Render(m.listView(state)))
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString(m.help.View(listKeys{keys: m.keys, authenticated: state.Authenticated}))
	return b.String()
}

func (m *tuiModel) headerView() string {
	h := m.header.State()
	who := "not logged in"
	if h.Authenticated {
		who = "logged in as " + h.UserName
	}
	left := headerStyle.Render("Blog")
	right := userStyle.Render(who)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + userStyle.Render(strings.Repeat(" ", gap-1)) + right
}

func (m *tuiModel) listView(s PostListState) string {
	var b strings.Builder
	if s.Loading || m.pending > 0 {
		b.WriteString(dimStyle.Render("Loading…"))
		b.WriteString("\n\n")
	}

	if len(s.Posts) == 0 && !s.Loading {
		b.WriteString("No posts added yet!\n")
	}
	for i, p := range s.Posts {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("› ")
		}
		b.WriteString(marker + titleStyle.Render(p.Title))
		if s.CanEdit(p) {
			b.WriteString(dimStyle.Render("  [e]dit [d]elete"))
		}
		b.WriteString("\n" + paragraphs(p.Content, m.width, "    ") + "\n")
		b.WriteString(dimStyle.Render("    "+p.ImagePath) + "\n\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("Page %d of %d · %d per page · %d posts",
		s.CurrentPage, s.PageCount(), s.PostsPerPage, s.TotalPosts)))
	return b.String()
}

func (m *tuiModel) statusView() string {
	if m.status == "" {
		return ""
	}
	return errorStyle.Render(m.status) + "\n"
}

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

type formField struct {
	label       string
	value       string
	placeholder string
	required    bool
	password    bool
}

type form struct {
	title  string
	fields []formField
	inputs []textinput.Model
	focus  int
	submit func(values []string) tea.Cmd
}

func newForm(title string, fields []formField, submit func([]string) tea.Cmd) *form {
	inputs := make([]textinput.Model, len(fields))
	for i, field := range fields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = field.placeholder
		in.SetValue(field.value)
		if field.password {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		inputs[i] = in
	}
	return &form{title: title, fields: fields, inputs: inputs, submit: submit}
}

func (f *form) focusField(i int) tea.Cmd {
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	f.focus = i
	return f.inputs[i].Focus()
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) values() []string {
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		out[i] = strings.TrimSpace(in.Value())
	}
	return out
}

// missing names the first required field left empty.
func (f *form) missing() string {
	for i, v := range f.values() {
		if f.fields[i].required && v == "" {
			return f.fields[i].label
		}
	}
	return ""
}

func (f *form) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title) + "\n\n")
	for i, in := range f.inputs {
		b.WriteString(labelStyle.Render(f.fields[i].label) + in.View() + "\n")
	}
	return b.String()
}
