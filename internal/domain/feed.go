package domain

import (
	"fmt"
	"strings"
)

// CategoryAll is the catch-all category. Posts without a category land here
// and filtering by it matches everything.
const CategoryAll = "All"

// Categories lists the community categories in display order.
var Categories = []string{
	CategoryAll,
	"Pregnancy",
	"Postpartum",
	"Feeding",
	"Sleep",
	"Mental Health",
	"Recovery",
	"Milestones",
}

// Sort is the ordering requested from the posts listing.
type Sort string

const (
	// SortNewest orders by creation time, most recent first.
	SortNewest Sort = "new"

	// SortTop orders by score, highest first.
	SortTop Sort = "top"
)

// ParseSort converts a user-supplied sort name. An empty string yields
// SortNewest.
func ParseSort(s string) (Sort, error) {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortTop:
		return SortTop, nil
	default:
		return "", fmt.Errorf("unknown sort %q", s)
	}
}

// Query identifies one view of the feed: a category and sort combination.
type Query struct {
	Category string `json:"category,omitempty"`
	Sort     Sort   `json:"sort,omitempty"`
}

// Key returns a stable string naming the view, used to key cached pages.
func (q Query) Key() string {
	category := q.Category
	if category == "" {
		category = CategoryAll
	}
	sort := q.Sort
	if sort == "" {
		sort = SortNewest
	}
	return strings.ToLower(category) + "::" + string(sort)
}

// MatchesCategory reports whether a post in category belongs in this view.
func (q Query) MatchesCategory(category string) bool {
	return q.Category == "" || q.Category == CategoryAll || strings.EqualFold(q.Category, category)
}

// MatchesFilter reports whether p passes the client-side category and search
// filter. An empty query matches every post.
func MatchesFilter(p *Post, category, search string) bool {
	if category != "" && category != CategoryAll && p.Category != category {
		return false
	}
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), search) ||
		strings.Contains(strings.ToLower(p.Content), search)
}
