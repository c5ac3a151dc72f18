package tracker

import (
	"github.com/r3labs/diff/v3"

	"github.com/subwatch/subwatch"
)

// Event is implemented by every event the tracker publishes.
type Event interface {
	event()
}

// SubscriptionAdded is published when AddSubscription stores a new subscription.
type SubscriptionAdded struct {
	Subscription subwatch.Subscription
}

// VideosDiscovered is published when a sync finds videos not seen before.
type VideosDiscovered struct {
	Subscription subwatch.Subscription
	Videos       []subwatch.Video
}

// VideoUpdated is published when a refresh changes a stored video.
type VideoUpdated struct {
	Video   subwatch.Video
	Changes diff.Changelog
}

// SyncCompleted is published at the end of each SyncAll pass; Err aggregates
// any per-subscription failures.
type SyncCompleted struct {
	Err error
}

func (SubscriptionAdded) event() {}
func (VideosDiscovered) event()  {}
func (VideoUpdated) event()      {}
func (SyncCompleted) event()     {}
