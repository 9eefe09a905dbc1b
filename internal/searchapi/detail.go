package searchapi

import (
	"context"
	"encoding/json"

	"github.com/hayashi/prowl/internal/fetch"
)

// Comment is one entry in an item's nested reply tree.
type Comment struct {
	Author  string    `json:"author"`
	Body    string    `json:"body"`
	Score   int       `json:"score"`
	Replies []Comment `json:"replies,omitempty"`
}

// Detail is the full view of a single item, including its reply tree.
type Detail struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Comments []Comment `json:"comments"`
}

// commentData is the interpreted slice of a comment child. Replies is kept
// raw because the API returns an empty string instead of a listing when a
// comment has no replies.
type commentData struct {
	Author  string          `json:"author"`
	Body    string          `json:"body"`
	Score   int             `json:"score"`
	Replies json.RawMessage `json:"replies"`
}

// detailPost is the interpreted slice of the item payload in a detail view.
type detailPost struct {
	Title    string `json:"title"`
	Selftext string `json:"selftext"`
}

// FetchDetail fetches the detail view for an item identified by its
// permalink (e.g. "/r/sub/comments/abc123/title/") through proxyAddr and
// extracts the nested reply tree.
//
// The detail endpoint returns a two-element array: the item listing and
// the comment listing. Anything else is a protocol error.
func (c *Client) FetchDetail(ctx context.Context, proxyAddr, permalink string) (*Detail, int, error) {
	body, status, err := c.get(ctx, proxyAddr, c.baseURL+permalink+".json")
	if err != nil {
		return nil, status, err
	}

	var listings []listing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, status, fetch.NewProtocolError("decode detail view", err)
	}
	if len(listings) < 2 || len(listings[0].Data.Children) == 0 {
		return nil, status, fetch.NewProtocolError("decode detail view", errEmptyDetail)
	}

	var post detailPost
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return nil, status, fetch.NewProtocolError("decode detail post", err)
	}

	return &Detail{
		Title:    post.Title,
		Body:     post.Selftext,
		Comments: extractComments(listings[1].Data.Children),
	}, status, nil
}

// extractComments walks a comment listing recursively. Non-comment kinds
// ("more" placeholders and the like) and unparseable entries are skipped;
// a partial tree is better than none.
func extractComments(children []child) []Comment {
	comments := make([]Comment, 0, len(children))
	for _, ch := range children {
		if ch.Kind != "t1" {
			continue
		}
		var data commentData
		if err := json.Unmarshal(ch.Data, &data); err != nil {
			continue
		}

		comment := Comment{
			Author: data.Author,
			Body:   data.Body,
			Score:  data.Score,
		}

		// Replies are a nested listing when present and "" when absent.
		if len(data.Replies) > 0 && data.Replies[0] == '{' {
			var nested listing
			if err := json.Unmarshal(data.Replies, &nested); err == nil {
				comment.Replies = extractComments(nested.Data.Children)
			}
		}
		comments = append(comments, comment)
	}
	return comments
}
