package store

import "github.com/inficreator0/hello-mom/internal/domain"

// ApplyRemote merges a server-pushed copy of a post into the list. Server
// fields overwrite the local ones and votes is recomputed from the server's
// counts; the user's own vote, bookmark and loaded comments are kept. Posts
// not in the list are ignored.
func (s *Store) ApplyRemote(post domain.Post) bool {
	return s.commit(func(cur *Snapshot) *Snapshot {
		return withPost(cur, post.ID, func(p *domain.Post) *domain.Post {
			c := clonePost(p)
			c.Title = post.Title
			c.Content = post.Content
			c.Category = post.Category
			c.Flair = post.Flair
			c.Upvotes = post.Upvotes
			c.Downvotes = post.Downvotes
			c.Votes = post.Upvotes - post.Downvotes
			c.CommentCount = post.CommentCount
			c.UpdatedAt = post.UpdatedAt
			if sameSalient(p, c) && p.Upvotes == c.Upvotes && p.Downvotes == c.Downvotes &&
				p.Category == c.Category && p.Flair == c.Flair {
				return nil
			}
			return c
		})
	})
}

// InsertRemote prepends a post created elsewhere if it belongs in the current
// view: the list has loaded, is sorted newest first, the category matches and
// the post is not already present.
func (s *Store) InsertRemote(post domain.Post) bool {
	if post.Comments == nil {
		post.Comments = []domain.Comment{}
	}
	return s.commit(func(cur *Snapshot) *Snapshot {
		if !cur.HasLoaded || cur.indexOf(post.ID) >= 0 {
			return nil
		}
		if cur.Query.Sort != "" && cur.Query.Sort != domain.SortNewest {
			return nil
		}
		if !cur.Query.MatchesCategory(post.Category) {
			return nil
		}
		next := cur.clone()
		next.Posts = make([]*domain.Post, 0, len(cur.Posts)+1)
		next.Posts = append(next.Posts, &post)
		next.Posts = append(next.Posts, cur.Posts...)
		return next
	})
}

// Seed keeps a previously saved page for q so a view has something to show
// before its first refresh completes; see Snapshot.Listing. The list itself
// is untouched. It does nothing once a refresh has succeeded.
func (s *Store) Seed(q domain.Query, page *domain.Page) bool {
	if page == nil || len(page.Posts) == 0 {
		return false
	}
	return s.commit(func(cur *Snapshot) *Snapshot {
		if cur.HasLoaded {
			return nil
		}
		next := cur.clone()
		next.Seeded = toPointers(page.Posts)
		next.SeededQuery = q
		return next
	})
}

// Export returns the loaded posts and the pagination cursor as a page, with
// comments stripped, for saving between runs.
func (s *Store) Export() (domain.Query, *domain.Page) {
	snap := s.Snapshot()
	page := &domain.Page{
		Posts:      make([]domain.Post, len(snap.Posts)),
		NextCursor: snap.NextCursor,
		HasNext:    snap.HasMore,
	}
	for i, p := range snap.Posts {
		page.Posts[i] = *p
		page.Posts[i].Comments = []domain.Comment{}
	}
	return snap.Query, page
}
