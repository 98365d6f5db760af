package cache

import (
	"context"
	"testing"
	"time"

	"github.com/inficreator0/hello-mom/internal/domain"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTokens(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	token, err := repo.GetToken(ctx, "default")
	if err != nil || token != "" {
		t.Fatalf("GetToken on empty cache = %q, %v", token, err)
	}

	if err := repo.SaveToken(ctx, "default", "first"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := repo.SaveToken(ctx, "default", "second"); err != nil {
		t.Fatalf("SaveToken overwrite: %v", err)
	}
	if token, _ := repo.GetToken(ctx, "default"); token != "second" {
		t.Errorf("GetToken = %q, want second", token)
	}

	if err := repo.DeleteToken(ctx, "default"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := repo.DeleteToken(ctx, "default"); err != nil {
		t.Errorf("DeleteToken on missing account: %v", err)
	}
	if token, _ := repo.GetToken(ctx, "default"); token != "" {
		t.Errorf("token survived delete: %q", token)
	}
}

func TestPages(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	key := domain.Query{Category: "Sleep"}.Key()

	page, err := repo.LoadPage(ctx, key)
	if err != nil || page != nil {
		t.Fatalf("LoadPage on empty cache = %v, %v", page, err)
	}

	created := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	saved := &domain.Page{
		Posts: []domain.Post{
			{ID: "42", Title: "Night feeds", Votes: 3, UserVote: domain.VoteUp, Category: "Sleep", CreatedAt: created, Comments: []domain.Comment{}},
		},
		NextCursor: "abc",
		HasNext:    true,
	}
	if err := repo.SavePage(ctx, key, saved); err != nil {
		t.Fatalf("SavePage: %v", err)
	}

	got, err := repo.LoadPage(ctx, key)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if got.NextCursor != "abc" || !got.HasNext || len(got.Posts) != 1 {
		t.Fatalf("LoadPage = %+v", got)
	}
	p := got.Posts[0]
	if p.ID != "42" || p.UserVote != domain.VoteUp || p.Votes != 3 || !p.CreatedAt.Equal(created) {
		t.Errorf("post round trip = %+v", p)
	}

	if other, _ := repo.LoadPage(ctx, domain.Query{Category: "Feeding"}.Key()); other != nil {
		t.Error("page leaked into another view")
	}
}

func TestDeleteOldPages(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return now.Add(-48 * time.Hour) }
	if err := repo.SavePage(ctx, "old", &domain.Page{}); err != nil {
		t.Fatalf("SavePage old: %v", err)
	}
	repo.now = func() time.Time { return now }
	if err := repo.SavePage(ctx, "fresh", &domain.Page{}); err != nil {
		t.Fatalf("SavePage fresh: %v", err)
	}

	deleted, err := repo.DeleteOldPages(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldPages: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if p, _ := repo.LoadPage(ctx, "fresh"); p == nil {
		t.Error("fresh page was deleted")
	}
	if p, _ := repo.LoadPage(ctx, "old"); p != nil {
		t.Error("old page survived")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name     string
		postgres bool
		want     string
	}{
		{"sqlite", false, "SELECT a FROM t WHERE b = ? AND c = ?"},
		{"postgres", true, "SELECT a FROM t WHERE b = $1 AND c = $2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Repository{postgres: tt.postgres}
			if got := r.rebind("SELECT a FROM t WHERE b = ? AND c = ?"); got != tt.want {
				t.Errorf("rebind = %q, want %q", got, tt.want)
			}
		})
	}
}
