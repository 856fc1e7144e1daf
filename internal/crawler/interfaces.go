package crawler

import (
	"context"
	"time"
)

// Renderer opens navigation sessions. Implementations need not be safe for concurrent
// navigation on one Page; the executor bounds concurrency explicitly.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a browser context. Pages derived from it share cookies but not navigation state.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one navigable tab.
type Page interface {
	// Load navigates to locator and waits for the document, bounded by timeout.
	Load(ctx context.Context, locator string, timeout time.Duration) error
	// WaitFor blocks until selector matches a visible node, bounded by timeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// HTML returns the current document.
	HTML(ctx context.Context) (string, error)
	// Click activates the index-th node matching selector.
	Click(ctx context.Context, selector string, index int, timeout time.Duration) error
	// Close releases the page. It is idempotent.
	Close() error
}

// Extractor reads one loaded match page.
type Extractor interface {
	ReadySelector() string
	Extract(ctx context.Context, page Page, bookmaker string) (MatchRecord, error)
	TeamLinks(ctx context.Context, page Page) (home string, away string, err error)
	CompetitionLink(ctx context.Context, page Page) (string, error)
}

// Lister reads match references from a paginated listing.
type Lister interface {
	ListSelector() string
	ItemRefs(ctx context.Context, page Page) ([]string, error)
	// NextPage advances the listing. It reports false when there is no usable next page.
	NextPage(ctx context.Context, page Page) (bool, error)
}

// Index answers the idempotency gate.
type Index interface {
	Exists(ctx context.Context, key DatasetKey) (bool, error)
}

// Store persists finished datasets.
type Store interface {
	Index
	Save(ctx context.Context, dataset Dataset) (string, error)
}

// Publisher pushes dataset-saved notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pauser sleeps for delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes payload checksums recorded alongside stored datasets.
type Hasher interface {
	Hash(data []byte) (string, error)
}
