package events

import (
	"encoding/json"
	"fmt"

	"github.com/inficreator0/hello-mom/internal/domain"
	"github.com/inficreator0/hello-mom/internal/hellomom"
)

// Event types pushed by the posts service.
const (
	TypePostCreated = "post.created"
	TypePostUpdated = "post.updated"
	TypePostDeleted = "post.deleted"
)

// Event is one decoded push message.
type Event struct {
	Type   string
	PostID domain.ID

	// Post is set for created and updated events.
	Post *domain.Post
}

// rawEvent is the JSON frame as sent by the server. The post payload uses
// the same shape as the REST API.
type rawEvent struct {
	Type   string          `json:"type"`
	PostID json.RawMessage `json:"postId,omitempty"`
	Post   json.RawMessage `json:"post,omitempty"`
}

func parseEvent(data []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &Event{Type: raw.Type}

	if len(raw.Post) > 0 && string(raw.Post) != "null" {
		post, err := hellomom.DecodePost(raw.Post)
		if err != nil {
			return nil, fmt.Errorf("decode %s post: %w", raw.Type, err)
		}
		event.Post = &post
		event.PostID = post.ID
	}

	if len(raw.PostID) > 0 && string(raw.PostID) != "null" {
		id, err := decodeID(raw.PostID)
		if err != nil {
			return nil, fmt.Errorf("decode %s postId: %w", raw.Type, err)
		}
		event.PostID = id
	}

	switch event.Type {
	case TypePostCreated, TypePostUpdated:
		if event.Post == nil {
			return nil, fmt.Errorf("%s event without post", event.Type)
		}
	case TypePostDeleted:
		if event.PostID == "" {
			return nil, fmt.Errorf("%s event without postId", event.Type)
		}
	}

	return event, nil
}

// decodeID accepts a JSON string or number.
func decodeID(data json.RawMessage) (domain.ID, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return domain.ID(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return domain.ID(n.String()), nil
}
