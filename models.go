package main

import "time"

type Post struct {
	ID        string
	Title     string
	Content   string
	ImagePath string
	Creator   string
}

// RawPost is a post as the backend sends it, with the backend's own
// identifier field.
type RawPost struct {
	ID        string `json:"_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ImagePath string `json:"imagePath"`
	Creator   string `json:"creator"`
}

func (p RawPost) toPost() Post {
	return Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImagePath: p.ImagePath,
		Creator:   p.Creator,
	}
}

// PostPage is the payload of a post list update.
type PostPage struct {
	Posts     []Post
	PostCount int
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	UserName  string
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string  `json:"token"`
	ExpiresIn float64 `json:"expiresIn"`
	UserID    string  `json:"userId"`
	FullName  string  `json:"fullName"`
}

type postsResponse struct {
	Message  string    `json:"message"`
	Posts    []RawPost `json:"posts"`
	MaxPosts int       `json:"maxPosts"`
}

type createPostResponse struct {
	Message string  `json:"message"`
	Post    RawPost `json:"post"`
}

// updatePostRequest is sent when the image is left unchanged. Creator is
// always null so the backend resolves it from the token.
type updatePostRequest struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	ImagePath string  `json:"imagePath"`
	Creator   *string `json:"creator"`
}
