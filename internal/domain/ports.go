package domain

import (
	"context"
	"time"
)

// ListParams selects a page from the remote posts listing.
type ListParams struct {
	Query

	// Cursor is the continuation token from the previous page; empty for the
	// first page.
	Cursor string

	// Limit is the requested page size. Zero leaves it to the server.
	Limit int
}

// PostsAPI is the remote posts service as consumed by the posts store.
type PostsAPI interface {
	// ListPosts fetches one page of posts.
	ListPosts(ctx context.Context, params ListParams) (*Page, error)

	// GetComments fetches the top-level comments of a post with their replies.
	GetComments(ctx context.Context, postID ID) ([]Comment, error)

	CreatePost(ctx context.Context, input PostInput) (*Post, error)
	UpdatePost(ctx context.Context, postID ID, input PostInput) (*Post, error)
	DeletePost(ctx context.Context, postID ID) error

	Upvote(ctx context.Context, postID ID) error
	Downvote(ctx context.Context, postID ID) error

	SavePost(ctx context.Context, postID ID) error
	UnsavePost(ctx context.Context, postID ID) error

	// CreateComment adds a comment to a post. An empty parentID creates a
	// top-level comment.
	CreateComment(ctx context.Context, postID ID, content string, parentID ID) (*Comment, error)
}

// TokenRepository persists bearer tokens between runs.
type TokenRepository interface {
	// GetToken returns the saved token for account, or "" if none is saved.
	GetToken(ctx context.Context, account string) (string, error)

	SaveToken(ctx context.Context, account, token string) error
	DeleteToken(ctx context.Context, account string) error
}

// PageRepository persists the first page of a view so the next run can show
// it before the network answers.
type PageRepository interface {
	// SavePage stores page under the given view key, replacing any previous one.
	SavePage(ctx context.Context, viewKey string, page *Page) error

	// LoadPage returns the stored page for viewKey, or nil if none is stored.
	LoadPage(ctx context.Context, viewKey string) (*Page, error)

	// DeleteOldPages removes pages saved longer than maxAge ago. Returns the
	// number of pages deleted.
	DeleteOldPages(ctx context.Context, maxAge time.Duration) (int64, error)
}
