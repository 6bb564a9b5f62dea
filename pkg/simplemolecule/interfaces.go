package simplemolecule

import (
	"context"
	"time"
)

// FallbackSource is the lowest-priority, non-authoritative tier of the
// resolver. Implementations map (folder, filename) onto their own layout,
// conventionally {root}/{folder}/{filename}.
type FallbackSource interface {
	// Name identifies the source in logs and errors
	Name() string

	// Read returns the text stored for filename. Implementations try the plain
	// filename first and then the identifier's disambiguated name.
	// A missing file is reported as ErrSourceNotFound.
	Read(ctx context.Context, folder, filename, identifier string) (*SourceObject, error)

	// Write stores content under the identifier's disambiguated name and
	// returns the key or path written.
	Write(ctx context.Context, folder, filename, identifier, content string) (string, error)
}

// SourceObject is a file returned by a FallbackSource.
type SourceObject struct {
	Path    string
	Content string
	Size    int64
	ModTime time.Time
}

// Notifier receives store change events. Notify must not block; it is called
// after the store lock has been released.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Subscriber consumes events dispatched by an Emitter.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}
