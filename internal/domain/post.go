package domain

import (
	"errors"
	"time"
)

// ErrPostNotFound is returned when an operation targets a post that is not in
// the current list.
var ErrPostNotFound = errors.New("post not found")

// ID is the canonical identifier for posts and comments. The backend emits
// both numeric and string ids; they are converted to ID once, when wire
// payloads are decoded.
type ID string

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// Post is a community post as held by the client.
type Post struct {
	ID             ID     `json:"id"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Category       string `json:"category"`
	Flair          string `json:"flair,omitempty"`
	Author         string `json:"author"`
	AuthorID       ID     `json:"authorId,omitempty"`
	AuthorUsername string `json:"authorUsername,omitempty"`

	// Upvotes and Downvotes are maintained by the server. Votes starts out as
	// Upvotes-Downvotes and then tracks optimistic local voting.
	Upvotes   int  `json:"upvotes"`
	Downvotes int  `json:"downvotes"`
	Votes     int  `json:"votes"`
	UserVote  Vote `json:"userVote,omitempty"`

	Bookmarked   bool      `json:"bookmarked"`
	CommentCount int       `json:"commentCount"`
	Comments     []Comment `json:"comments"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Comment is a comment on a post. Top-level comments carry their replies;
// replies never carry replies of their own.
type Comment struct {
	ID              ID         `json:"id"`
	PostID          ID         `json:"postId"`
	ParentCommentID ID         `json:"parentCommentId,omitempty"`
	Content         string     `json:"content"`
	Author          string     `json:"author"`
	AuthorID        ID         `json:"authorId,omitempty"`
	AuthorUsername  string     `json:"authorUsername,omitempty"`
	Upvotes         int        `json:"upvotes"`
	Downvotes       int        `json:"downvotes"`
	ReplyCount      int        `json:"replyCount"`
	Replies         []Comment  `json:"replies,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// IsTopLevel reports whether the comment has no parent.
func (c *Comment) IsTopLevel() bool {
	return c.ParentCommentID == ""
}

// PostInput is the user-editable part of a post, sent on create and update.
type PostInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Flair    string `json:"flair,omitempty"`
}

// Page is one page of posts returned by a cursor-paginated listing.
type Page struct {
	Posts []Post `json:"posts"`

	// NextCursor is the opaque continuation token; empty means no further pages.
	NextCursor string `json:"nextCursor,omitempty"`
	HasNext    bool   `json:"hasNext"`
}
