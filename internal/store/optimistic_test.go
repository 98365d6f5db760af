package store

import (
	"context"
	"errors"
	"testing"

	"github.com/inficreator0/hello-mom/internal/domain"
)

func TestVoteArithmetic(t *testing.T) {
	tests := []struct {
		name      string
		votes     int
		userVote  domain.Vote
		direction domain.Vote
		wantVotes int
		wantVote  domain.Vote
	}{
		{"upvote from none", 10, domain.VoteNone, domain.VoteUp, 11, domain.VoteUp},
		{"downvote from none", 10, domain.VoteNone, domain.VoteDown, 9, domain.VoteDown},
		{"upvote again clears", 10, domain.VoteUp, domain.VoteUp, 9, domain.VoteNone},
		{"downvote again clears", 10, domain.VoteDown, domain.VoteDown, 11, domain.VoteNone},
		{"flip up to down", 10, domain.VoteUp, domain.VoteDown, 8, domain.VoteDown},
		{"flip down to up", 10, domain.VoteDown, domain.VoteUp, 12, domain.VoteUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			s := loadedStore(t, api, domain.Post{ID: "p", Votes: tt.votes, UserVote: tt.userVote})

			if err := s.Vote(context.Background(), "p", tt.direction); err != nil {
				t.Fatalf("Vote: %v", err)
			}
			p, _ := s.Post("p")
			if p.Votes != tt.wantVotes || p.UserVote != tt.wantVote {
				t.Errorf("got votes=%d userVote=%q, want %d %q", p.Votes, p.UserVote, tt.wantVotes, tt.wantVote)
			}
		})
	}
}

func TestVoteTwiceRestores(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api, domain.Post{ID: "p", Votes: 3})
	ctx := context.Background()

	for _, dir := range []domain.Vote{domain.VoteUp, domain.VoteDown} {
		for i := 0; i < 2; i++ {
			if err := s.Vote(ctx, "p", dir); err != nil {
				t.Fatalf("Vote(%s): %v", dir, err)
			}
		}
		p, _ := s.Post("p")
		if p.Votes != 3 || p.UserVote != domain.VoteNone {
			t.Errorf("after voting %s twice: votes=%d userVote=%q", dir, p.Votes, p.UserVote)
		}
	}
	want := []string{"upvote p", "upvote p", "downvote p", "downvote p"}
	if len(api.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", api.calls, want)
	}
	for i := range want {
		if api.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, api.calls[i], want[i])
		}
	}
}

func TestVoteRollback(t *testing.T) {
	api := &fakeAPI{vote: func(domain.ID, domain.Vote) error { return errBackend }}
	s := loadedStore(t, api, domain.Post{ID: "p", Votes: 7, UserVote: domain.VoteDown})

	err := s.Vote(context.Background(), "p", domain.VoteUp)
	if !errors.Is(err, errBackend) {
		t.Fatalf("Vote error = %v, want %v", err, errBackend)
	}
	p, _ := s.Post("p")
	if p.Votes != 7 || p.UserVote != domain.VoteDown {
		t.Errorf("after rollback: votes=%d userVote=%q, want 7 down", p.Votes, p.UserVote)
	}
}

func TestVoteRollbackSkippedAfterConcurrentChange(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{vote: func(domain.ID, domain.Vote) error {
		close(entered)
		<-release
		return errBackend
	}}
	s := loadedStore(t, api, domain.Post{ID: "p", Votes: 5})

	errc := make(chan error, 1)
	go func() { errc <- s.Vote(context.Background(), "p", domain.VoteUp) }()
	<-entered

	// A server push lands while the vote is in flight.
	s.UpdatePost("p", func(p domain.Post) domain.Post { p.Votes = 40; return p })
	close(release)

	if err := <-errc; !errors.Is(err, errBackend) {
		t.Fatalf("Vote error = %v", err)
	}
	p, _ := s.Post("p")
	if p.Votes != 40 || p.UserVote != domain.VoteUp {
		t.Errorf("newer state overwritten: votes=%d userVote=%q", p.Votes, p.UserVote)
	}
}

func TestVoteErrors(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api, domain.Post{ID: "p"})
	ctx := context.Background()

	if err := s.Vote(ctx, "missing", domain.VoteUp); !errors.Is(err, domain.ErrPostNotFound) {
		t.Errorf("Vote on missing post: %v", err)
	}
	if err := s.Vote(ctx, "p", domain.VoteNone); err == nil {
		t.Error("Vote with empty direction succeeded")
	}
	if len(api.calls) != 0 {
		t.Errorf("unexpected remote calls: %v", api.calls)
	}
}

func TestToggleBookmarkOptimistic(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{save: func(_ domain.ID, saved bool) error {
		if !saved {
			t.Error("unsave called for an unbookmarked post")
		}
		close(entered)
		<-release
		return errBackend
	}}
	s := loadedStore(t, api, domain.Post{ID: "p"})

	errc := make(chan error, 1)
	go func() { errc <- s.ToggleBookmark(context.Background(), "p") }()
	<-entered

	if p, _ := s.Post("p"); !p.Bookmarked {
		t.Error("bookmark not shown while the request is in flight")
	}
	close(release)

	if err := <-errc; !errors.Is(err, errBackend) {
		t.Fatalf("ToggleBookmark error = %v", err)
	}
	if p, _ := s.Post("p"); p.Bookmarked {
		t.Error("bookmark not reverted after failure")
	}
}

func TestToggleBookmarkUnsaves(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api, domain.Post{ID: "p", Bookmarked: true})

	if err := s.ToggleBookmark(context.Background(), "p"); err != nil {
		t.Fatalf("ToggleBookmark: %v", err)
	}
	if p, _ := s.Post("p"); p.Bookmarked {
		t.Error("post still bookmarked")
	}
	if len(api.calls) != 1 || api.calls[0] != "unsave p" {
		t.Errorf("calls = %v, want [unsave p]", api.calls)
	}

	if err := s.ToggleBookmark(context.Background(), "missing"); !errors.Is(err, domain.ErrPostNotFound) {
		t.Errorf("toggle on missing post: %v", err)
	}
}

func TestCreatePost(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api, domain.Post{ID: "A"})
	ctx := context.Background()

	if _, err := s.CreatePost(ctx, domain.PostInput{Title: "  ", Content: "body"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank title: %v", err)
	}

	created, err := s.CreatePost(ctx, domain.PostInput{Title: "First tooth", Content: "at 5 months"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if got := postIDs(s.Snapshot()); !equalIDs(got, []domain.ID{created.ID, "A"}) {
		t.Errorf("posts = %v", got)
	}

	api.create = func(domain.PostInput) (*domain.Post, error) { return nil, errBackend }
	before := s.Snapshot()
	if _, err := s.CreatePost(ctx, domain.PostInput{Title: "t", Content: "c"}); !errors.Is(err, errBackend) {
		t.Errorf("failed create: %v", err)
	}
	if s.Snapshot() != before {
		t.Error("failed create changed the list")
	}
}

func TestEditPostKeepsScore(t *testing.T) {
	api := &fakeAPI{update: func(id domain.ID, input domain.PostInput) (*domain.Post, error) {
		return &domain.Post{ID: id, Title: input.Title, Content: input.Content, Category: "Sleep", Votes: 0}, nil
	}}
	s := loadedStore(t, api, domain.Post{ID: "p", Title: "old", Content: "old", Votes: 9, UserVote: domain.VoteUp, Bookmarked: true})

	if _, err := s.EditPost(context.Background(), "p", domain.PostInput{Title: "new", Content: "text"}); err != nil {
		t.Fatalf("EditPost: %v", err)
	}
	p, _ := s.Post("p")
	if p.Title != "new" || p.Content != "text" || p.Category != "Sleep" {
		t.Errorf("edit not applied: %+v", p)
	}
	if p.Votes != 9 || p.UserVote != domain.VoteUp || !p.Bookmarked {
		t.Errorf("per-user fields lost: %+v", p)
	}
}

func TestDeletePost(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api, domain.Post{ID: "A"}, domain.Post{ID: "B"})
	ctx := context.Background()

	api.remove = func(domain.ID) error { return errBackend }
	if err := s.DeletePost(ctx, "A"); !errors.Is(err, errBackend) {
		t.Errorf("failed delete: %v", err)
	}
	if len(s.Snapshot().Posts) != 2 {
		t.Error("post removed although the server refused")
	}

	api.remove = nil
	if err := s.DeletePost(ctx, "A"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if got := postIDs(s.Snapshot()); !equalIDs(got, []domain.ID{"B"}) {
		t.Errorf("posts = %v", got)
	}
}

func TestAddComment(t *testing.T) {
	api := &fakeAPI{comments: func(postID domain.ID) ([]domain.Comment, error) {
		return []domain.Comment{{ID: "c-new", PostID: postID, Content: "same here"}}, nil
	}}
	s := loadedStore(t, api, domain.Post{ID: "p", CommentCount: 2})
	ctx := context.Background()

	if _, err := s.AddComment(ctx, "p", "   ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank comment: %v", err)
	}

	if _, err := s.AddComment(ctx, "p", "same here", ""); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	p, _ := s.Post("p")
	if p.CommentCount != 3 {
		t.Errorf("commentCount = %d, want 3", p.CommentCount)
	}
	if len(p.Comments) != 1 || p.Comments[0].ID != "c-new" {
		t.Errorf("comments not reloaded: %+v", p.Comments)
	}
	want := []string{"comment p", "comments p"}
	if len(api.calls) != 2 || api.calls[0] != want[0] || api.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", api.calls, want)
	}
}

func TestApplyRemote(t *testing.T) {
	api := &fakeAPI{}
	s := loadedStore(t, api,
		domain.Post{ID: "p", Title: "t", Upvotes: 3, Votes: 4, UserVote: domain.VoteUp, Bookmarked: true,
			Comments: []domain.Comment{{ID: "c1"}}},
		domain.Post{ID: "q"},
	)
	before := s.Snapshot()

	if s.ApplyRemote(domain.Post{ID: "other", Title: "x"}) {
		t.Error("ApplyRemote inserted an unknown post")
	}

	changed := s.ApplyRemote(domain.Post{ID: "p", Title: "t2", Upvotes: 10, Downvotes: 2, CommentCount: 5})
	if !changed {
		t.Fatal("ApplyRemote reported no change")
	}
	p, _ := s.Post("p")
	if p.Title != "t2" || p.Votes != 8 || p.CommentCount != 5 {
		t.Errorf("server fields not applied: %+v", p)
	}
	if p.UserVote != domain.VoteUp || !p.Bookmarked || len(p.Comments) != 1 {
		t.Errorf("local fields lost: %+v", p)
	}
	if s.Snapshot().Posts[1] != before.Posts[1] {
		t.Error("untouched post replaced")
	}

	version := s.Snapshot().Version
	if s.ApplyRemote(domain.Post{ID: "p", Title: "t2", Upvotes: 10, Downvotes: 2, CommentCount: 5}) {
		t.Error("identical push reported a change")
	}
	if s.Snapshot().Version != version {
		t.Error("identical push produced a new snapshot")
	}
}

func TestInsertRemote(t *testing.T) {
	tests := []struct {
		name  string
		query domain.Query
		post  domain.Post
		want  bool
	}{
		{"all categories", domain.Query{}, domain.Post{ID: "n", Category: "Sleep"}, true},
		{"matching category", domain.Query{Category: "Sleep"}, domain.Post{ID: "n", Category: "Sleep"}, true},
		{"other category", domain.Query{Category: "Feeding"}, domain.Post{ID: "n", Category: "Sleep"}, false},
		{"top sort", domain.Query{Sort: domain.SortTop}, domain.Post{ID: "n"}, false},
		{"already present", domain.Query{}, domain.Post{ID: "A"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{list: func(int, domain.ListParams) (*domain.Page, error) {
				return pageOf("", false, "A"), nil
			}}
			s := New(api, nil, 0)
			s.Refresh(context.Background(), tt.query)

			if got := s.InsertRemote(tt.post); got != tt.want {
				t.Errorf("InsertRemote = %v, want %v", got, tt.want)
			}
			if tt.want && s.Snapshot().Posts[0].ID != tt.post.ID {
				t.Error("post not placed at the head of the list")
			}
		})
	}

	t.Run("before first load", func(t *testing.T) {
		s := New(&fakeAPI{}, nil, 0)
		if s.InsertRemote(domain.Post{ID: "n"}) {
			t.Error("inserted into a list that never loaded")
		}
	})
}

func TestSeedShownUntilFirstRefreshLands(t *testing.T) {
	q := domain.Query{Category: domain.CategoryAll, Sort: domain.SortNewest}
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{list: func(int, domain.ListParams) (*domain.Page, error) {
		close(entered)
		<-release
		return pageOf("", false, "C"), nil
	}}
	s := New(api, nil, 0)
	if !s.Seed(q, pageOf("c2", true, "A", "B")) {
		t.Fatal("Seed on an empty store reported no change")
	}

	done := make(chan struct{})
	go func() {
		s.Refresh(context.Background(), q)
		close(done)
	}()
	<-entered

	snap := s.Snapshot()
	if len(snap.Posts) != 0 {
		t.Errorf("Refresh kept the list: %v", postIDs(snap))
	}
	posts, stale := snap.Listing()
	if !stale || !equalIDs(idsOf(posts), []domain.ID{"A", "B"}) {
		t.Errorf("Listing while refresh in flight = %v stale=%v, want [A B] stale", idsOf(posts), stale)
	}

	close(release)
	<-done

	snap = s.Snapshot()
	posts, stale = snap.Listing()
	if stale || !equalIDs(idsOf(posts), []domain.ID{"C"}) {
		t.Errorf("Listing after refresh = %v stale=%v, want [C]", idsOf(posts), stale)
	}
	if snap.Seeded != nil {
		t.Error("seeded page kept after a successful refresh")
	}
	if s.Seed(q, pageOf("", false, "Z")) {
		t.Error("Seed after a successful refresh reported a change")
	}
}

func TestSeedIgnoredForOtherView(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{list: func(int, domain.ListParams) (*domain.Page, error) {
		close(entered)
		<-release
		return pageOf("", false), nil
	}}
	s := New(api, nil, 0)
	s.Seed(domain.Query{Category: "Sleep"}, pageOf("", false, "A"))

	done := make(chan struct{})
	go func() {
		s.Refresh(context.Background(), domain.Query{Category: "Feeding"})
		close(done)
	}()
	<-entered
	if posts, stale := s.Snapshot().Listing(); stale || len(posts) != 0 {
		t.Errorf("Listing for another view = %v stale=%v", idsOf(posts), stale)
	}
	close(release)
	<-done
}

func TestExport(t *testing.T) {
	saved := pageOf("c2", true, "A", "B")
	saved.Posts[0].Comments = []domain.Comment{{ID: "c1"}}
	api := &fakeAPI{list: func(int, domain.ListParams) (*domain.Page, error) { return saved, nil }}
	q := domain.Query{Category: "Sleep", Sort: domain.SortNewest}
	s := New(api, nil, 0)
	s.Refresh(context.Background(), q)

	gotQuery, page := s.Export()
	if gotQuery != q || page.NextCursor != "c2" || !page.HasNext || len(page.Posts) != 2 {
		t.Errorf("Export = %v %+v", gotQuery, page)
	}
	if len(page.Posts[0].Comments) != 0 {
		t.Error("Export kept comments")
	}
	if p, _ := s.Post("A"); len(p.Comments) != 1 {
		t.Error("Export modified the live post")
	}
}

func TestSubscribeNotifiesUntilCancelled(t *testing.T) {
	s := New(&fakeAPI{}, nil, 0)
	var versions []uint64
	cancel := s.Subscribe(func(snap *Snapshot) { versions = append(versions, snap.Version) })

	s.AddPost(domain.Post{ID: "a"})
	s.AddPost(domain.Post{ID: "b"})
	cancel()
	s.AddPost(domain.Post{ID: "c"})

	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Errorf("versions = %v, want [1 2]", versions)
	}
}
