package model

import "encoding/json"

// Item is a single fetched result. The payload is passed through unmodified;
// only the identity key is interpreted, and only for deduplication.
type Item struct {
	// Key is the deduplication identity of the item. For search-API
	// results this is typically the item ID, falling back to a permalink
	// when no ID is present.
	Key string `json:"key"`

	// Payload is the opaque item body as returned by the target API.
	Payload json.RawMessage `json:"payload"`
}
