package subwatch

import (
	"context"
)

// Configuration holds user-supplied settings for a provider, keyed by the
// setting keys declared in the provider's Settings schema.
type Configuration = map[string]any

// ProviderState tracks whether a provider instance holds valid settings.
type ProviderState string

const (
	StateNotConfigured ProviderState = "not_configured"
	StateOK            ProviderState = "ok"
	StateError         ProviderState = "error"
)

// ProviderInfo describes a provider implementation: a stable identifier,
// display strings, and the settings schema used to render and validate its
// configuration form.
type ProviderInfo struct {
	ID          string
	Name        string
	Description string
	Settings    Settings
}

// UpdateOptions selects which parts of a video UpdateVideos should refresh.
// The zero value requests nothing, making UpdateVideos a no-op.
type UpdateOptions struct {
	// Metadata refreshes descriptive fields (title, description, thumbnail).
	Metadata bool
	// Statistics refreshes counters (view count, rating).
	Statistics bool
}

// A VideoProvider adapts one external video platform, resolving subscription
// URLs into Subscription records and keeping their Video records up to date.
//
// URL-building and URL-validation methods are pure and usable in any state.
// FetchSubscription, FetchVideos and UpdateVideos require State() == StateOK
// and return ErrNotConfigured otherwise. Configure and Unconfigure are not
// safe for concurrent use with each other; everything else may be called
// concurrently.
type VideoProvider interface {
	// Info returns the static description of this provider.
	Info() ProviderInfo
	// State reports whether the provider currently holds valid settings.
	State() ProviderState
	// Configure validates and applies the given settings, then moves the
	// provider to StateOK. A *ValidationError leaves the state unchanged; a
	// backend failure while activating the settings moves it to StateError.
	Configure(ctx context.Context, config Configuration) error
	// Unconfigure discards any held settings and credentials, returning the
	// provider to StateNotConfigured.
	Unconfigure(ctx context.Context) error
	// ValidateConfiguration checks the given settings against the schema
	// without applying them, returning a *ValidationError describing every
	// offending field. It never mutates provider state.
	ValidateConfiguration(config Configuration) error
	// SubscriptionURL returns the canonical URL of the subscription on the
	// external platform.
	SubscriptionURL(sub *Subscription) string
	// ValidateSubscriptionURL returns an *InvalidURLError if the URL does not
	// have a shape this provider can resolve.
	ValidateSubscriptionURL(rawURL string) error
	// FetchSubscription resolves a subscription URL into a Subscription by
	// querying the external platform. The URL shape is checked before any
	// network call is attempted.
	FetchSubscription(ctx context.Context, rawURL string) (*Subscription, error)
	// VideoURL returns the canonical URL of the video on the external platform.
	VideoURL(video *Video) string
	// FetchVideos returns the latest batch of videos belonging to the
	// subscription, with only minimal fields populated; UpdateVideos fills in
	// the rest. Videos of other subscriptions are never returned.
	FetchVideos(ctx context.Context, sub *Subscription) ([]Video, error)
	// UpdateVideos refreshes the selected fields of each video in place.
	// Videos that no longer exist upstream are soft failures: the batch
	// continues and the per-video errors are aggregated in the result.
	UpdateVideos(ctx context.Context, videos []*Video, opts UpdateOptions) error
}
