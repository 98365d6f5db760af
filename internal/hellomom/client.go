package hellomom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/inficreator0/hello-mom/internal/domain"
)

const defaultBaseURL = "https://motherhood-community-app-latest.onrender.com/api"

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	StatusCode int

	// Message is the server-provided message, or the HTTP status text when
	// the body carried none.
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client is a Hello Mom community API client. It implements
// domain.PostsAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *Credentials
	logger     *slog.Logger
}

var _ domain.PostsAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// HTTP client, so a client passed to WithHTTPClient is left unchanged.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// NewClient creates a client for the API at baseURL. If baseURL is empty, it
// defaults to the hosted service. A nil creds gets a fresh holder.
func NewClient(baseURL string, creds *Credentials, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if creds == nil {
		creds = NewCredentials()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds:  creds,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns the holder whose token is attached to requests.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// Session describes the signed-in user after Login or Register.
type Session struct {
	Token    string
	UserID   domain.ID
	Username string
	Email    string
}

// Registration is the sign-up form.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Login authenticates and stores the returned token in the credential holder.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c.startSession(&resp), nil
}

// Register creates an account and signs in as it.
func (c *Client) Register(ctx context.Context, reg Registration) (*Session, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", reg, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return c.startSession(&resp), nil
}

func (c *Client) startSession(resp *authResponse) *Session {
	c.creds.Set(resp.Token)
	return &Session{
		Token:    resp.Token,
		UserID:   domain.ID(resp.UserID),
		Username: resp.Username,
		Email:    resp.Email,
	}
}

// Logout forgets the stored token. There is no server-side session to end.
func (c *Client) Logout() {
	c.creds.Clear()
}

// ListPosts fetches one page of posts.
func (c *Client) ListPosts(ctx context.Context, params domain.ListParams) (*domain.Page, error) {
	q := url.Values{}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Category != "" && params.Category != domain.CategoryAll {
		q.Set("category", params.Category)
	}
	if params.Sort != "" {
		q.Set("sort", string(params.Sort))
	}
	if params.Limit > 0 {
		q.Set("size", strconv.Itoa(params.Limit))
	}

	path := "/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp listPostsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	page := &domain.Page{
		Posts:      make([]domain.Post, len(resp.Content)),
		NextCursor: string(resp.NextCursor),
		HasNext:    resp.HasNext,
	}
	for i := range resp.Content {
		page.Posts[i] = toPost(&resp.Content[i])
	}
	return page, nil
}

// GetPost fetches a single post.
func (c *Client) GetPost(ctx context.Context, postID domain.ID) (*domain.Post, error) {
	var resp backendPost
	if err := c.do(ctx, http.MethodGet, postPath(postID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	p := toPost(&resp)
	return &p, nil
}

// GetComments fetches the comments of a post arranged as top-level comments
// with their replies.
func (c *Client) GetComments(ctx context.Context, postID domain.ID) ([]domain.Comment, error) {
	var resp []backendComment
	if err := c.do(ctx, http.MethodGet, postPath(postID)+"/comments", nil, &resp); err != nil {
		return nil, fmt.Errorf("get comments for post %s: %w", postID, err)
	}
	return toCommentTree(resp), nil
}

// CreatePost publishes a new post and returns it as stored by the server.
func (c *Client) CreatePost(ctx context.Context, input domain.PostInput) (*domain.Post, error) {
	var resp backendPost
	if err := c.do(ctx, http.MethodPost, "/posts", input, &resp); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	p := toPost(&resp)
	return &p, nil
}

// UpdatePost edits a post and returns the server's copy.
func (c *Client) UpdatePost(ctx context.Context, postID domain.ID, input domain.PostInput) (*domain.Post, error) {
	var resp backendPost
	if err := c.do(ctx, http.MethodPut, postPath(postID), input, &resp); err != nil {
		return nil, fmt.Errorf("update post %s: %w", postID, err)
	}
	p := toPost(&resp)
	return &p, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, postID domain.ID) error {
	if err := c.do(ctx, http.MethodDelete, postPath(postID), nil, nil); err != nil {
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	return nil
}

// Upvote records an upvote. The server toggles an existing upvote off.
func (c *Client) Upvote(ctx context.Context, postID domain.ID) error {
	if err := c.do(ctx, http.MethodPost, postPath(postID)+"/upvote", nil, nil); err != nil {
		return fmt.Errorf("upvote post %s: %w", postID, err)
	}
	return nil
}

// Downvote records a downvote. The server toggles an existing downvote off.
func (c *Client) Downvote(ctx context.Context, postID domain.ID) error {
	if err := c.do(ctx, http.MethodPost, postPath(postID)+"/downvote", nil, nil); err != nil {
		return fmt.Errorf("downvote post %s: %w", postID, err)
	}
	return nil
}

// SavePost bookmarks a post for the signed-in user.
func (c *Client) SavePost(ctx context.Context, postID domain.ID) error {
	if err := c.do(ctx, http.MethodPost, postPath(postID)+"/save", nil, nil); err != nil {
		return fmt.Errorf("save post %s: %w", postID, err)
	}
	return nil
}

// UnsavePost removes a bookmark.
func (c *Client) UnsavePost(ctx context.Context, postID domain.ID) error {
	if err := c.do(ctx, http.MethodDelete, postPath(postID)+"/save", nil, nil); err != nil {
		return fmt.Errorf("unsave post %s: %w", postID, err)
	}
	return nil
}

// CreateComment adds a comment or, with a parentID, a reply.
func (c *Client) CreateComment(ctx context.Context, postID domain.ID, content string, parentID domain.ID) (*domain.Comment, error) {
	body := createCommentRequest{
		Content:         content,
		ParentCommentID: string(parentID),
	}
	var resp backendComment
	if err := c.do(ctx, http.MethodPost, postPath(postID)+"/comments", body, &resp); err != nil {
		return nil, fmt.Errorf("create comment on post %s: %w", postID, err)
	}
	comment := toComment(&resp)
	if comment.PostID == "" {
		comment.PostID = postID
	}
	return &comment, nil
}

// UpdateComment edits the content of a comment.
func (c *Client) UpdateComment(ctx context.Context, postID, commentID domain.ID, content string) (*domain.Comment, error) {
	body := map[string]string{"content": content}
	var resp backendComment
	if err := c.do(ctx, http.MethodPut, commentPath(postID, commentID), body, &resp); err != nil {
		return nil, fmt.Errorf("update comment %s: %w", commentID, err)
	}
	comment := toComment(&resp)
	return &comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, postID, commentID domain.ID) error {
	if err := c.do(ctx, http.MethodDelete, commentPath(postID, commentID), nil, nil); err != nil {
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	return nil
}

func postPath(postID domain.ID) string {
	return "/posts/" + url.PathEscape(postID.String())
}

func commentPath(postID, commentID domain.ID) string {
	return postPath(postID) + "/comments/" + url.PathEscape(commentID.String())
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return &APIError{StatusCode: status, Message: payload.Message}
	}
	return &APIError{
		StatusCode: status,
		Message:    "API Error: " + http.StatusText(status),
	}
}
