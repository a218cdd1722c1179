package predictions

import "context"

// Document is the persistence port for the single prediction document.
//
// Load returns nil data and a nil error when the document does not exist yet.
// Update runs one read-modify-write cycle under a lock that is held across
// processes sharing the backend: fn receives the current bytes (nil when
// missing) and returns the replacement. An error from fn aborts the cycle
// without writing and is returned unchanged. The replacement is stored
// atomically: either in full or not at all.
type Document interface {
	Load(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// Archive receives a copy of every committed document.
type Archive interface {
	Snapshot(ctx context.Context, data []byte) error
}
