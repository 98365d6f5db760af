package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/inficreator0/hello-mom/internal/domain"
)

func formatScore(p *domain.Post) string {
	marker := " "
	switch p.UserVote {
	case domain.VoteUp:
		marker = "▲"
	case domain.VoteDown:
		marker = "▼"
	}
	return fmt.Sprintf("%s%6s", marker, humanize.Comma(int64(p.Votes)))
}

func byline(author string, created time.Time) string {
	if created.IsZero() {
		return author
	}
	return author + ", " + humanize.Time(created)
}

func printFeed(w io.Writer, posts []*domain.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts")
		return
	}
	for _, p := range posts {
		bookmark := ""
		if p.Bookmarked {
			bookmark = " [saved]"
		}
		fmt.Fprintf(w, "%s  %s%s\n", formatScore(p), p.Title, bookmark)
		fmt.Fprintf(w, "         #%s in %s by %s, %s\n",
			p.ID, p.Category, byline(p.Author, p.CreatedAt),
			plural(p.CommentCount, "comment"))
	}
}

func printPost(w io.Writer, p *domain.Post) {
	fmt.Fprintf(w, "%s  %s\n", formatScore(p), p.Title)
	fmt.Fprintf(w, "#%s in %s by %s\n", p.ID, p.Category, byline(p.Author, p.CreatedAt))
	if p.UpdatedAt != nil {
		fmt.Fprintf(w, "edited %s\n", humanize.Time(*p.UpdatedAt))
	}
	fmt.Fprintf(w, "\n%s\n\n%s\n", p.Content, plural(p.CommentCount, "comment"))

	for _, c := range p.Comments {
		printComment(w, c, "  ")
		for _, r := range c.Replies {
			printComment(w, r, "      ")
		}
	}
}

func printComment(w io.Writer, c domain.Comment, indent string) {
	fmt.Fprintf(w, "%s#%s %s:\n", indent, c.ID, byline(c.Author, c.CreatedAt))
	for _, line := range strings.Split(c.Content, "\n") {
		fmt.Fprintf(w, "%s  %s\n", indent, line)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
