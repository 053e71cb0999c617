package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// ErrInvalidImage is returned when a post needs an image file and has none.
var ErrInvalidImage = errors.New("image file is required")

// PostImage is the image attached to a post: either a new file to
// upload or the path of the image the post already has.
type PostImage struct {
	File io.Reader
	Path string
}

// PostsService caches the last fetched page of posts and announces each
// new page on Updates.
type PostsService struct {
	client *Client
	nav    Navigator
	logger *slog.Logger

	mu    sync.Mutex
	posts []Post

	updates Bus[PostPage]
}

func NewPostsService(client *Client, nav Navigator, logger *slog.Logger) *PostsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostsService{
		client: client,
		nav:    nav,
		logger: logger,
	}
}

// GetPosts fetches one page and publishes it. page is 1-based. On error
// nothing is published; the client has already reported the failure.
func (s *PostsService) GetPosts(ctx context.Context, pageSize, page int) error {
	query := url.Values{}
	query.Set("pagesize", strconv.Itoa(pageSize))
	query.Set("page", strconv.Itoa(page))

	var resp postsResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/posts/", query, nil, &resp); err != nil {
		return fmt.Errorf("getting posts: %w", err)
	}

	posts := make([]Post, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		posts = append(posts, p.toPost())
	}

	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()

	s.updates.Publish(PostPage{
		Posts:     clonePosts(posts),
		PostCount: resp.MaxPosts,
	})
	return nil
}

// AddPost uploads a new post. The cache is not touched; callers refetch.
func (s *PostsService) AddPost(ctx context.Context, title, content string, image io.Reader) error {
	if image == nil {
		return ErrInvalidImage
	}

	fields := [][2]string{{"title", title}, {"content", content}}
	file := formFile{field: "image", filename: title, content: image}

	var resp createPostResponse
	if err := s.client.doMultipart(ctx, http.MethodPost, "/posts/", fields, file, &resp); err != nil {
		return fmt.Errorf("adding post: %w", err)
	}

	s.logger.Info("post added", "id", resp.Post.ID)
	s.nav.Navigate(routeHome)
	return nil
}

// UpdatePost replaces a post. A new image file is sent as multipart; an
// unchanged image path is sent as JSON with the creator left for the
// backend to fill in.
func (s *PostsService) UpdatePost(ctx context.Context, id, title, content string, image PostImage) error {
	path := "/posts/" + url.PathEscape(id)

	var err error
	if image.File != nil {
		fields := [][2]string{{"id", id}, {"title", title}, {"content", content}}
		file := formFile{field: "image", filename: title, content: image.File}
		err = s.client.doMultipart(ctx, http.MethodPut, path, fields, file, nil)
	} else {
		req := updatePostRequest{
			ID:        id,
			Title:     title,
			Content:   content,
			ImagePath: image.Path,
		}
		err = s.client.doJSON(ctx, http.MethodPut, path, nil, req, nil)
	}
	if err != nil {
		return fmt.Errorf("updating post %s: %w", id, err)
	}

	s.logger.Info("post updated", "id", id)
	s.nav.Navigate(routeHome)
	return nil
}

// DeletePost deletes a post and returns the outcome as is. Refreshing
// the list is up to the caller.
func (s *PostsService) DeletePost(ctx context.Context, id string) error {
	return s.client.doJSON(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil, nil)
}

// GetPost fetches a single post in the backend's own shape.
func (s *PostsService) GetPost(ctx context.Context, id string) (*RawPost, error) {
	var post RawPost
	if err := s.client.doJSON(ctx, http.MethodGet, "/posts/"+url.PathEscape(id), nil, nil, &post); err != nil {
		return nil, fmt.Errorf("getting post %s: %w", id, err)
	}
	return &post, nil
}

// Posts returns a copy of the cached page.
func (s *PostsService) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePosts(s.posts)
}

func (s *PostsService) Updates() *Bus[PostPage] {
	return &s.updates
}

func clonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	return out
}
