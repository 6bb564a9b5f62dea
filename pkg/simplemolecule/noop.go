package simplemolecule

import "context"

// NoopNotifier discards every event.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Event) {}
