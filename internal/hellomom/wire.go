package hellomom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inficreator0/hello-mom/internal/domain"
)

const unknownAuthor = "Unknown"

// flexString decodes a JSON string, number, or null into a string. The
// backend has emitted ids and cursors as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// wireTime accepts RFC 3339 timestamps as well as zone-less ISO local times,
// which are taken as UTC.
type wireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			return nil
		}
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type backendPost struct {
	ID              flexString `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	AuthorID        flexString `json:"authorId"`
	AuthorUsername  string     `json:"authorUsername"`
	Category        string     `json:"category"`
	Flair           string     `json:"flair"`
	Upvotes         int        `json:"upvotes"`
	Downvotes       int        `json:"downvotes"`
	CurrentUserVote string     `json:"currentUserVote"`
	Saved           bool       `json:"saved"`
	CommentCount    int        `json:"commentCount"`
	CreatedAt       wireTime   `json:"createdAt"`
	UpdatedAt       *wireTime  `json:"updatedAt"`
}

type backendComment struct {
	ID              flexString       `json:"id"`
	Content         string           `json:"content"`
	AuthorID        flexString       `json:"authorId"`
	AuthorUsername  string           `json:"authorUsername"`
	PostID          flexString       `json:"postId"`
	ParentCommentID flexString       `json:"parentCommentId"`
	Upvotes         int              `json:"upvotes"`
	Downvotes       int              `json:"downvotes"`
	ReplyCount      int              `json:"replyCount"`
	CreatedAt       wireTime         `json:"createdAt"`
	UpdatedAt       *wireTime        `json:"updatedAt"`
	Replies         []backendComment `json:"replies"`
}

type listPostsResponse struct {
	Content    []backendPost `json:"content"`
	NextCursor flexString    `json:"nextCursor"`
	HasNext    bool          `json:"hasNext"`
}

type authResponse struct {
	Token    string     `json:"token"`
	Type     string     `json:"type"`
	UserID   flexString `json:"userId"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
}

type createCommentRequest struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// DecodePost decodes a backend post payload into a domain post.
func DecodePost(data []byte) (domain.Post, error) {
	var bp backendPost
	if err := json.Unmarshal(data, &bp); err != nil {
		return domain.Post{}, fmt.Errorf("unmarshal post: %w", err)
	}
	return toPost(&bp), nil
}

func toPost(bp *backendPost) domain.Post {
	author := bp.AuthorUsername
	if author == "" {
		author = unknownAuthor
	}
	category := bp.Category
	if category == "" {
		category = domain.CategoryAll
	}

	return domain.Post{
		ID:             domain.ID(bp.ID),
		Title:          bp.Title,
		Content:        bp.Content,
		Category:       category,
		Flair:          bp.Flair,
		Author:         author,
		AuthorID:       domain.ID(bp.AuthorID),
		AuthorUsername: bp.AuthorUsername,
		Upvotes:        bp.Upvotes,
		Downvotes:      bp.Downvotes,
		Votes:          bp.Upvotes - bp.Downvotes,
		UserVote:       toVote(bp.CurrentUserVote),
		Bookmarked:     bp.Saved,
		CommentCount:   bp.CommentCount,
		Comments:       []domain.Comment{},
		CreatedAt:      bp.CreatedAt.Time,
		UpdatedAt:      bp.UpdatedAt.ptr(),
	}
}

func toVote(s string) domain.Vote {
	switch strings.ToUpper(s) {
	case "UPVOTE":
		return domain.VoteUp
	case "DOWNVOTE":
		return domain.VoteDown
	default:
		return domain.VoteNone
	}
}

func toComment(bc *backendComment) domain.Comment {
	author := bc.AuthorUsername
	if author == "" {
		author = unknownAuthor
	}
	return domain.Comment{
		ID:              domain.ID(bc.ID),
		PostID:          domain.ID(bc.PostID),
		ParentCommentID: domain.ID(bc.ParentCommentID),
		Content:         bc.Content,
		Author:          author,
		AuthorID:        domain.ID(bc.AuthorID),
		AuthorUsername:  bc.AuthorUsername,
		Upvotes:         bc.Upvotes,
		Downvotes:       bc.Downvotes,
		ReplyCount:      bc.ReplyCount,
		CreatedAt:       bc.CreatedAt.Time,
		UpdatedAt:       bc.UpdatedAt.ptr(),
	}
}

// toCommentTree builds the two-tier comment tree. The backend may nest
// replies under their parent, list them flat next to top-level comments, or
// both; deeper replies are hoisted to their top-level ancestor. Replies whose
// ancestor is not in the response are dropped.
func toCommentTree(wire []backendComment) []domain.Comment {
	var (
		tops     []domain.Comment
		topIndex = map[domain.ID]int{}
		rootOf   = map[domain.ID]domain.ID{}
		pending  []domain.Comment
		seen     = map[domain.ID]bool{}
	)

	// root is empty when the top-level ancestor is not known yet.
	var collect func(bc *backendComment, parent, root domain.ID)
	collect = func(bc *backendComment, parent, root domain.ID) {
		c := toComment(bc)
		if c.ParentCommentID == "" {
			c.ParentCommentID = parent
		}
		if root != "" {
			rootOf[c.ID] = root
		}
		pending = append(pending, c)
		for i := range bc.Replies {
			collect(&bc.Replies[i], c.ID, root)
		}
	}

	for i := range wire {
		bc := &wire[i]
		c := toComment(bc)
		if !c.IsTopLevel() {
			collect(bc, "", "")
			continue
		}
		topIndex[c.ID] = len(tops)
		rootOf[c.ID] = c.ID
		tops = append(tops, c)
		for j := range bc.Replies {
			collect(&bc.Replies[j], c.ID, c.ID)
		}
	}

	// Resolve flat replies, possibly several levels deep.
	for changed := true; changed; {
		changed = false
		for _, c := range pending {
			if _, ok := rootOf[c.ID]; ok {
				continue
			}
			if root, ok := rootOf[c.ParentCommentID]; ok {
				rootOf[c.ID] = root
				changed = true
			}
		}
	}

	for _, c := range pending {
		root, ok := rootOf[c.ID]
		if !ok || seen[c.ID] {
			continue
		}
		idx, ok := topIndex[root]
		if !ok {
			continue
		}
		seen[c.ID] = true
		tops[idx].Replies = append(tops[idx].Replies, c)
	}

	if tops == nil {
		tops = []domain.Comment{}
	}
	return tops
}
