package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/inficreator0/hello-mom/internal/cache"
	"github.com/inficreator0/hello-mom/internal/config"
	"github.com/inficreator0/hello-mom/internal/domain"
	"github.com/inficreator0/hello-mom/internal/hellomom"
	"github.com/inficreator0/hello-mom/internal/store"
)

const usage = `usage: hellomom <command> [flags]

commands:
  register   create an account and sign in
  login      sign in and save the session
  logout     forget the saved session
  feed       list posts
  show       show one post with its comments
  post       create a post
  edit       edit a post
  delete     delete a post
  vote       upvote or downvote a post (repeat to clear)
  bookmark   toggle a bookmark
  comment    comment on a post, reply, or edit or delete your comment

Run "hellomom <command> -h" for the flags of a command.`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every command needs: the API client, a store over it and the
// cache that holds the session.
type app struct {
	client *hellomom.Client
	posts  *store.Store
	repo   *cache.Repository
	out    io.Writer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"register": registerCmd,
	"login":    loginCmd,
	"logout":   logoutCmd,
	"feed":     feedCmd,
	"show":     showCmd,
	"post":     postCmd,
	"edit":     editCmd,
	"delete":   deleteCmd,
	"vote":     voteCmd,
	"bookmark": bookmarkCmd,
	"comment":  commentCmd,
}

// run executes one command, writing its output to out.
func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprintln(out, usage)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	repo, err := cache.Open(cfg.CacheDSN)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer repo.Close()

	creds := hellomom.NewCredentials()
	token, err := repo.GetToken(ctx, cache.DefaultAccount)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	creds.Set(token)

	client := hellomom.NewClient(cfg.APIURL, creds, logger, hellomom.WithTimeout(cfg.HTTPTimeout))
	a := &app{
		client: client,
		posts:  store.New(client, logger, cfg.PageSize),
		repo:   repo,
		out:    out,
	}

	err = cmd(ctx, a, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if hellomom.IsStatus(err, http.StatusUnauthorized) || hellomom.IsStatus(err, http.StatusForbidden) {
		return fmt.Errorf("%w (run \"hellomom login\" first)", err)
	}
	return err
}

// loadPost puts the server's copy of a post into the store so store
// operations can act on it.
func (a *app) loadPost(ctx context.Context, id string) (*domain.Post, error) {
	if id == "" {
		return nil, errors.New("-id is required")
	}
	post, err := a.client.GetPost(ctx, domain.ID(id))
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	a.posts.AddPost(*post)
	p, _ := a.posts.Post(post.ID)
	return p, nil
}

func (a *app) saveSession(ctx context.Context, s *hellomom.Session) error {
	if err := a.repo.SaveToken(ctx, cache.DefaultAccount, s.Token); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", s.Username)
	return nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var reg hellomom.Registration
	fs.StringVar(&reg.Username, "username", "", "username")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Password, "password", os.Getenv("HELLOMOM_PASSWORD"), "password (or set HELLOMOM_PASSWORD)")
	fs.StringVar(&reg.FirstName, "first-name", "", "first name")
	fs.StringVar(&reg.LastName, "last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return errors.New("-username, -email and -password are required")
	}

	session, err := a.client.Register(ctx, reg)
	if err != nil {
		return err
	}
	return a.saveSession(ctx, session)
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", os.Getenv("HELLOMOM_USERNAME"), "username (or set HELLOMOM_USERNAME)")
	password := fs.String("password", os.Getenv("HELLOMOM_PASSWORD"), "password (or set HELLOMOM_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("-username and -password are required")
	}

	session, err := a.client.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	return a.saveSession(ctx, session)
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	a.client.Logout()
	if err := a.repo.DeleteToken(ctx, cache.DefaultAccount); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func feedCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	category := fs.String("category", domain.CategoryAll, "category: "+strings.Join(domain.Categories, ", "))
	sortName := fs.String("sort", string(domain.SortNewest), "sort order: new or top")
	search := fs.String("q", "", "only show posts whose title or content contains this text")
	pages := fs.Int("pages", 1, "number of pages to load")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sort, err := domain.ParseSort(*sortName)
	if err != nil {
		return err
	}

	q := domain.Query{Category: *category, Sort: sort}
	a.posts.Refresh(ctx, q)
	snap := a.posts.Snapshot()
	if !snap.HasLoaded {
		return errors.New("could not load posts (see log)")
	}
	for i := 1; i < *pages && a.posts.Snapshot().HasMore; i++ {
		a.posts.LoadMore(ctx, q)
	}

	visible := a.posts.Visible(*category, *search)
	printFeed(a.out, visible)
	if a.posts.Snapshot().HasMore {
		fmt.Fprintf(a.out, "\nMore posts available, use -pages %d\n", *pages+1)
	}

	exportQuery, page := a.posts.Export()
	if err := a.repo.SavePage(ctx, exportQuery.Key(), page); err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	return nil
}

func showCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.loadPost(ctx, *id); err != nil {
		return err
	}

	a.posts.LoadComments(ctx, domain.ID(*id))
	post, _ := a.posts.Post(domain.ID(*id))
	printPost(a.out, post)
	return nil
}

func postCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	var input domain.PostInput
	fs.StringVar(&input.Title, "title", "", "post title")
	fs.StringVar(&input.Content, "content", "", "post body")
	fs.StringVar(&input.Category, "category", "", "category")
	fs.StringVar(&input.Flair, "flair", "", "flair")
	if err := fs.Parse(args); err != nil {
		return err
	}

	post, err := a.posts.CreatePost(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created post %s\n", post.ID)
	return nil
}

func editCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	title := fs.String("title", "", "new title (default: keep)")
	content := fs.String("content", "", "new body (default: keep)")
	category := fs.String("category", "", "new category (default: keep)")
	flair := fs.String("flair", "", "new flair (default: keep)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	current, err := a.loadPost(ctx, *id)
	if err != nil {
		return err
	}

	input := domain.PostInput{
		Title:    orDefault(*title, current.Title),
		Content:  orDefault(*content, current.Content),
		Category: orDefault(*category, current.Category),
		Flair:    orDefault(*flair, current.Flair),
	}
	if _, err := a.posts.EditPost(ctx, current.ID, input); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated post %s\n", current.ID)
	return nil
}

func deleteCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.loadPost(ctx, *id); err != nil {
		return err
	}

	if err := a.posts.DeletePost(ctx, domain.ID(*id)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted post %s\n", *id)
	return nil
}

func voteCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("vote", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	dirName := fs.String("dir", "up", "up or down")
	if err := fs.Parse(args); err != nil {
		return err
	}
	direction, err := domain.ParseDirection(*dirName)
	if err != nil {
		return err
	}
	if _, err := a.loadPost(ctx, *id); err != nil {
		return err
	}

	if err := a.posts.Vote(ctx, domain.ID(*id), direction); err != nil {
		return err
	}
	post, _ := a.posts.Post(domain.ID(*id))
	fmt.Fprintf(a.out, "%s  %s\n", formatScore(post), post.Title)
	return nil
}

func bookmarkCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("bookmark", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.loadPost(ctx, *id); err != nil {
		return err
	}

	if err := a.posts.ToggleBookmark(ctx, domain.ID(*id)); err != nil {
		return err
	}
	post, _ := a.posts.Post(domain.ID(*id))
	if post.Bookmarked {
		fmt.Fprintf(a.out, "Bookmarked %q\n", post.Title)
	} else {
		fmt.Fprintf(a.out, "Removed bookmark from %q\n", post.Title)
	}
	return nil
}

func commentCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	content := fs.String("content", "", "comment text")
	parent := fs.String("parent", "", "id of the comment to reply to")
	edit := fs.String("edit", "", "id of your comment to replace with -content")
	del := fs.String("delete", "", "id of your comment to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *edit != "" && *del != "" {
		return errors.New("-edit and -delete cannot be combined")
	}
	if _, err := a.loadPost(ctx, *id); err != nil {
		return err
	}
	postID := domain.ID(*id)

	switch {
	case *del != "":
		if err := a.client.DeleteComment(ctx, postID, domain.ID(*del)); err != nil {
			return err
		}
		a.posts.UpdatePost(postID, func(p domain.Post) domain.Post {
			if p.CommentCount > 0 {
				p.CommentCount--
			}
			return p
		})
		fmt.Fprintf(a.out, "Deleted comment %s\n", *del)
	case *edit != "":
		if strings.TrimSpace(*content) == "" {
			return errors.New("-content is required")
		}
		comment, err := a.client.UpdateComment(ctx, postID, domain.ID(*edit), *content)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Updated comment %s\n", comment.ID)
	default:
		comment, err := a.posts.AddComment(ctx, postID, *content, domain.ID(*parent))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added comment %s\n", comment.ID)
		return nil
	}

	a.posts.LoadComments(ctx, postID)
	post, _ := a.posts.Post(postID)
	printPost(a.out, post)
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
