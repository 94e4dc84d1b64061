package bids

import "context"

// Notifier receives committed bid events. Implementations must not block the
// caller and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, event BidEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event BidEvent)

func (f NotifierFunc) Notify(ctx context.Context, event BidEvent) {
	f(ctx, event)
}

// Notifiers fans one event out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, event BidEvent) {
	for _, n := range ns {
		n.Notify(ctx, event)
	}
}
