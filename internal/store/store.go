package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/inficreator0/hello-mom/internal/domain"
)

// ErrInvalidInput is returned when a post or comment is submitted without
// its required text.
var ErrInvalidInput = errors.New("invalid input")

// Snapshot is one immutable state of the store. A change never modifies a
// snapshot or the posts it points to; it builds a new snapshot, reusing the
// pointers of posts it did not touch.
type Snapshot struct {
	Posts []*domain.Post

	// Query is the view the list was last refreshed for.
	Query domain.Query

	// NextCursor is the continuation token for the next page; empty means
	// there is none.
	NextCursor string
	HasMore    bool

	// IsLoading is set while a page request is in flight and guards LoadMore
	// against duplicate requests.
	IsLoading bool

	// HasLoaded is set once a refresh has completed successfully.
	HasLoaded bool

	// Seeded is a saved page for SeededQuery. Listing shows it in place of
	// the empty list until the first refresh of that view succeeds.
	Seeded      []*domain.Post
	SeededQuery domain.Query

	// Version increases by one with every new snapshot.
	Version uint64
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	return &c
}

// Listing returns the posts a view should render. While the first refresh
// of the seeded view is in flight that is the seeded page, and stale is true.
func (s *Snapshot) Listing() (posts []*domain.Post, stale bool) {
	if s.IsLoading && !s.HasLoaded && len(s.Seeded) > 0 && s.Query == s.SeededQuery {
		return s.Seeded, true
	}
	return s.Posts, false
}

func (s *Snapshot) indexOf(id domain.ID) int {
	for i, p := range s.Posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Listener is called with every new snapshot, after the store's lock is
// released.
type Listener func(*Snapshot)

// Store holds the posts of the current view and keeps them in sync with the
// remote service. Vote and bookmark changes are applied locally before the
// remote call and reverted if it fails; creates, edits and deletes are
// applied only after the server confirms them.
type Store struct {
	api      domain.PostsAPI
	logger   *slog.Logger
	pageSize int

	mu           sync.Mutex
	snap         *Snapshot
	generation   uint64 // bumped by Refresh; page responses from older generations are dropped
	listeners    map[int]Listener
	nextListener int
}

// New creates an empty store backed by api. pageSize is passed to the
// listing endpoint; zero leaves the page size to the server.
func New(api domain.PostsAPI, logger *slog.Logger, pageSize int) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		api:       api,
		logger:    logger,
		pageSize:  pageSize,
		snap:      &Snapshot{Posts: []*domain.Post{}},
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current state. Callers must treat it as read-only.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn to be called with each new snapshot. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// commit runs fn against the current snapshot under the lock. If fn returns
// a new snapshot it becomes current and listeners are notified; if it returns
// nil nothing changes. Reports whether a new snapshot was installed.
func (s *Store) commit(fn func(cur *Snapshot) *Snapshot) bool {
	s.mu.Lock()
	next := fn(s.snap)
	if next == nil {
		s.mu.Unlock()
		return false
	}
	next.Version = s.snap.Version + 1
	s.snap = next

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return true
}

// withPost returns a snapshot in which the post with the given id is
// replaced by fn's result. It returns nil when the post is absent or fn
// returns nil.
func withPost(cur *Snapshot, id domain.ID, fn func(p *domain.Post) *domain.Post) *Snapshot {
	i := cur.indexOf(id)
	if i < 0 {
		return nil
	}
	updated := fn(cur.Posts[i])
	if updated == nil {
		return nil
	}

	next := cur.clone()
	next.Posts = make([]*domain.Post, len(cur.Posts))
	copy(next.Posts, cur.Posts)
	next.Posts[i] = updated
	return next
}

func clonePost(p *domain.Post) *domain.Post {
	c := *p
	return &c
}

func toPointers(posts []domain.Post) []*domain.Post {
	out := make([]*domain.Post, len(posts))
	for i := range posts {
		p := posts[i]
		if p.Comments == nil {
			p.Comments = []domain.Comment{}
		}
		out[i] = &p
	}
	return out
}

// sameSalient reports whether b differs from a in none of the fields a view
// renders from the list.
func sameSalient(a, b *domain.Post) bool {
	return a.Votes == b.Votes &&
		a.UserVote == b.UserVote &&
		a.Bookmarked == b.Bookmarked &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.CommentCount == b.CommentCount
}

// Refresh discards the current list and loads the first page for q. A failed
// request leaves the list empty and is only logged. If another Refresh starts
// before this one's response arrives, the response is dropped.
func (s *Store) Refresh(ctx context.Context, q domain.Query) {
	var gen uint64
	s.commit(func(cur *Snapshot) *Snapshot {
		s.generation++
		gen = s.generation

		next := cur.clone()
		next.Posts = []*domain.Post{}
		next.Query = q
		next.NextCursor = ""
		next.HasMore = false
		next.IsLoading = true
		return next
	})

	page, err := s.api.ListPosts(ctx, domain.ListParams{Query: q, Limit: s.pageSize})

	stale := false
	s.commit(func(cur *Snapshot) *Snapshot {
		if gen != s.generation {
			stale = true
			return nil
		}
		next := cur.clone()
		next.IsLoading = false
		if err != nil {
			next.Posts = []*domain.Post{}
			return next
		}
		next.Posts = toPointers(page.Posts)
		next.NextCursor = page.NextCursor
		next.HasMore = page.HasNext
		next.HasLoaded = true
		next.Seeded = nil
		return next
	})

	switch {
	case stale:
		s.logger.Debug("dropped superseded refresh response", "category", q.Category, "sort", q.Sort)
	case err != nil:
		s.logger.Error("failed to refresh posts", "category", q.Category, "sort", q.Sort, "error", err)
	default:
		s.logger.Debug("refreshed posts", "category", q.Category, "sort", q.Sort, "posts", len(page.Posts), "has_more", page.HasNext)
	}
}

// LoadMore appends the next page. It does nothing when there is no next
// page or a page request is already in flight. A zero q continues the query
// of the last Refresh. Failures are logged and leave the list unchanged.
func (s *Store) LoadMore(ctx context.Context, q domain.Query) {
	var (
		gen     uint64
		cursor  string
		started bool
	)
	s.commit(func(cur *Snapshot) *Snapshot {
		if !cur.HasMore || cur.IsLoading || cur.NextCursor == "" {
			return nil
		}
		started = true
		gen = s.generation
		cursor = cur.NextCursor
		if q == (domain.Query{}) {
			q = cur.Query
		}

		next := cur.clone()
		next.IsLoading = true
		return next
	})
	if !started {
		return
	}

	page, err := s.api.ListPosts(ctx, domain.ListParams{Query: q, Cursor: cursor, Limit: s.pageSize})

	stale := false
	s.commit(func(cur *Snapshot) *Snapshot {
		if gen != s.generation {
			stale = true
			return nil
		}
		next := cur.clone()
		next.IsLoading = false
		if err != nil {
			return next
		}
		next.Posts = make([]*domain.Post, 0, len(cur.Posts)+len(page.Posts))
		next.Posts = append(next.Posts, cur.Posts...)
		next.Posts = append(next.Posts, toPointers(page.Posts)...)
		next.NextCursor = page.NextCursor
		next.HasMore = page.HasNext
		return next
	})

	switch {
	case stale:
		s.logger.Debug("dropped page from before the last refresh", "cursor", cursor)
	case err != nil:
		s.logger.Error("failed to load more posts", "cursor", cursor, "error", err)
	}
}

// LoadComments fetches the comments of one post and replaces that post's
// comment list. No other post is touched. Failures are logged and leave the
// existing comments in place.
func (s *Store) LoadComments(ctx context.Context, postID domain.ID) {
	comments, err := s.api.GetComments(ctx, postID)
	if err != nil {
		s.logger.Error("failed to load comments", "post_id", postID, "error", err)
		return
	}
	if comments == nil {
		comments = []domain.Comment{}
	}

	s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			c := clonePost(p)
			c.Comments = comments
			return c
		})
	})
}

// Post returns the post with the given id from the current list.
func (s *Store) Post(id domain.ID) (*domain.Post, bool) {
	snap := s.Snapshot()
	if i := snap.indexOf(id); i >= 0 {
		return snap.Posts[i], true
	}
	return nil, false
}

// Visible returns the posts of the current list that pass the category and
// search filter.
func (s *Store) Visible(category, search string) []*domain.Post {
	snap := s.Snapshot()
	out := make([]*domain.Post, 0, len(snap.Posts))
	for _, p := range snap.Posts {
		if domain.MatchesFilter(p, category, search) {
			out = append(out, p)
		}
	}
	return out
}

// UpdatePost applies updater to the post with the given id. It is a no-op if
// the post is absent, and no new snapshot is produced if the updater leaves
// the rendered fields unchanged. Reports whether the state changed.
func (s *Store) UpdatePost(postID domain.ID, updater func(domain.Post) domain.Post) bool {
	return s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			updated := updater(*p)
			if sameSalient(p, &updated) {
				return nil
			}
			return &updated
		})
	})
}

// AddPost puts post at the head of the list.
func (s *Store) AddPost(post domain.Post) {
	if post.Comments == nil {
		post.Comments = []domain.Comment{}
	}
	s.commit(func(cur *Snapshot) *Snapshot {
		next := cur.clone()
		next.Posts = make([]*domain.Post, 0, len(cur.Posts)+1)
		next.Posts = append(next.Posts, &post)
		next.Posts = append(next.Posts, cur.Posts...)
		return next
	})
}

// RemovePost drops the post with the given id. Reports whether it was present.
func (s *Store) RemovePost(postID domain.ID) bool {
	return s.commit(func(cur *Snapshot) *Snapshot {
		i := cur.indexOf(postID)
		if i < 0 {
			return nil
		}
		next := cur.clone()
		next.Posts = make([]*domain.Post, 0, len(cur.Posts)-1)
		next.Posts = append(next.Posts, cur.Posts[:i]...)
		next.Posts = append(next.Posts, cur.Posts[i+1:]...)
		return next
	})
}

// ToggleBookmark flips the bookmark locally, then saves or unsaves the post
// depending on the state before the flip. If the call fails the flag is
// restored and the error returned, unless the flag was changed again in the
// meantime.
func (s *Store) ToggleBookmark(ctx context.Context, postID domain.ID) error {
	var prev bool
	applied := s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			prev = p.Bookmarked
			c := clonePost(p)
			c.Bookmarked = !prev
			return c
		})
	})
	if !applied {
		return fmt.Errorf("toggle bookmark on post %s: %w", postID, domain.ErrPostNotFound)
	}

	var err error
	if prev {
		err = s.api.UnsavePost(ctx, postID)
	} else {
		err = s.api.SavePost(ctx, postID)
	}
	if err == nil {
		return nil
	}

	reverted := s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			if p.Bookmarked != !prev {
				return nil
			}
			c := clonePost(p)
			c.Bookmarked = prev
			return c
		})
	})
	if !reverted {
		s.logger.Warn("skipped bookmark revert, post changed since toggle", "post_id", postID)
	}
	s.logger.Error("failed to toggle bookmark", "post_id", postID, "error", err)
	return fmt.Errorf("toggle bookmark on post %s: %w", postID, err)
}

// Vote applies the user's vote locally and sends it to the server. If the
// call fails, votes and userVote are restored to their values before the
// vote and the error returned, unless either was changed again in the
// meantime.
func (s *Store) Vote(ctx context.Context, postID domain.ID, direction domain.Vote) error {
	if direction != domain.VoteUp && direction != domain.VoteDown {
		return fmt.Errorf("vote on post %s: invalid direction %q", postID, direction)
	}

	var (
		prevVotes, optVotes int
		prevVote, optVote   domain.Vote
	)
	applied := s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			prevVotes, prevVote = p.Votes, p.UserVote
			optVotes, optVote = domain.ApplyVote(p.Votes, p.UserVote, direction)
			c := clonePost(p)
			c.Votes, c.UserVote = optVotes, optVote
			return c
		})
	})
	if !applied {
		return fmt.Errorf("vote on post %s: %w", postID, domain.ErrPostNotFound)
	}

	send := s.api.Upvote
	if direction == domain.VoteDown {
		send = s.api.Downvote
	}
	err := send(ctx, postID)
	if err == nil {
		return nil
	}

	reverted := s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			if p.Votes != optVotes || p.UserVote != optVote {
				return nil
			}
			c := clonePost(p)
			c.Votes, c.UserVote = prevVotes, prevVote
			return c
		})
	})
	if !reverted {
		s.logger.Warn("skipped vote revert, post changed since vote", "post_id", postID)
	}
	s.logger.Error("failed to vote", "post_id", postID, "direction", direction, "error", err)
	return fmt.Errorf("vote on post %s: %w", postID, err)
}

// CreatePost publishes a post and, once the server has accepted it, puts the
// server's copy at the head of the list.
func (s *Store) CreatePost(ctx context.Context, input domain.PostInput) (*domain.Post, error) {
	if isBlank(input.Title) || isBlank(input.Content) {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}
	post, err := s.api.CreatePost(ctx, input)
	if err != nil {
		return nil, err
	}
	s.AddPost(*post)
	return post, nil
}

// EditPost updates a post on the server and then copies the server's title,
// content, category, flair and edit time into the local copy. Score and
// per-user fields are kept.
func (s *Store) EditPost(ctx context.Context, postID domain.ID, input domain.PostInput) (*domain.Post, error) {
	if isBlank(input.Title) || isBlank(input.Content) {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}
	updated, err := s.api.UpdatePost(ctx, postID, input)
	if err != nil {
		return nil, err
	}

	s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			c := clonePost(p)
			c.Title = updated.Title
			c.Content = updated.Content
			c.Category = updated.Category
			c.Flair = updated.Flair
			c.UpdatedAt = updated.UpdatedAt
			return c
		})
	})
	return updated, nil
}

// DeletePost deletes a post on the server and then removes it from the list.
func (s *Store) DeletePost(ctx context.Context, postID domain.ID) error {
	if err := s.api.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.RemovePost(postID)
	return nil
}

// AddComment posts a comment, or a reply when parentID is set. Once the
// server accepts it, the post's comment count goes up by one and its
// comments are reloaded.
func (s *Store) AddComment(ctx context.Context, postID domain.ID, content string, parentID domain.ID) (*domain.Comment, error) {
	if isBlank(content) {
		return nil, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	comment, err := s.api.CreateComment(ctx, postID, content, parentID)
	if err != nil {
		return nil, err
	}

	s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, postID, func(p *domain.Post) *domain.Post {
			c := clonePost(p)
			c.CommentCount++
			return c
		})
	})
	s.LoadComments(ctx, postID)
	return comment, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
