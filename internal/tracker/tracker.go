package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/subwatch/subwatch"
	"github.com/subwatch/subwatch/internal/provconfig"
	"github.com/subwatch/subwatch/internal/pubsub"
)

var ErrSubscriptionExists = errors.New("subscription already exists")

// Store is the subset of subscription and video persistence the tracker needs.
type Store interface {
	InsertSubscription(*subwatch.Subscription) error
	GetSubscriptionByChannel(provider, channelID string) (*subwatch.Subscription, error)
	ListSubscriptions() ([]subwatch.Subscription, error)
	SaveSubscription(*subwatch.Subscription) error
	InsertVideo(*subwatch.Video) error
	HasVideo(subscriptionID, videoID string) (bool, error)
	ListVideos(subscriptionID string) ([]subwatch.Video, error)
	SaveVideo(*subwatch.Video) error
}

type Config struct {
	Store       Store
	Providers   *subwatch.ProviderRegistry
	ConfigStore provconfig.Store
	// SyncInterval is how often Run re-syncs every subscription.
	SyncInterval time.Duration
}

var DefaultConfig = Config{
	Providers:    &subwatch.DefaultProviderRegistry,
	ConfigStore:  provconfig.NilStore{},
	SyncInterval: 30 * time.Minute,
}

// Tracker drives providers against the store: it configures backends, adds
// subscriptions, discovers new videos and refreshes stored ones.
type Tracker struct {
	config Config
	log    *zap.SugaredLogger
	events *pubsub.Publisher[Event]
}

func New(config Config) *Tracker {
	return &Tracker{
		config: config,
		log:    zap.S().Named("tracker"),
		events: pubsub.NewPublisher[Event](),
	}
}

func (t *Tracker) Subscribe() (*pubsub.Receiver[Event], error) {
	return t.events.Subscribe()
}

func (t *Tracker) Close() {
	t.events.Close()
}

// ConfigureProvider validates and applies config to the named provider,
// persisting it so the provider can be restored on the next run.
func (t *Tracker) ConfigureProvider(ctx context.Context, id string, config subwatch.Configuration) error {
	p, err := t.config.Providers.Get(id)
	if err != nil {
		return err
	}
	if err := p.Configure(ctx, config); err != nil {
		return err
	}
	if err := t.config.ConfigStore.Save(id, config); err != nil {
		return fmt.Errorf("provider configured but saving settings failed: %w", err)
	}
	t.log.Infow("provider configured", "provider", id)
	return nil
}

// UnconfigureProvider reverses ConfigureProvider, deleting the saved settings.
func (t *Tracker) UnconfigureProvider(ctx context.Context, id string) error {
	p, err := t.config.Providers.Get(id)
	if err != nil {
		return err
	}
	if err := p.Unconfigure(ctx); err != nil {
		return err
	}
	if err := t.config.ConfigStore.Delete(id); err != nil {
		return fmt.Errorf("provider unconfigured but deleting settings failed: %w", err)
	}
	t.log.Infow("provider unconfigured", "provider", id)
	return nil
}

// RestoreProviders re-configures providers from previously saved settings.
// Settings saved for an unknown provider are skipped; settings that no longer
// configure cleanly are reported but do not stop the rest from restoring.
func (t *Tracker) RestoreProviders(ctx context.Context) error {
	configs, err := t.config.ConfigStore.List()
	if err != nil {
		return err
	}
	var result error
	for id, config := range configs {
		p, err := t.config.Providers.Get(id)
		if err != nil {
			t.log.Warnw("saved settings for unknown provider", "provider", id)
			continue
		}
		if err := p.Configure(ctx, config); err != nil {
			result = multierror.Append(result, fmt.Errorf("provider %s: %w", id, err))
		}
	}
	return result
}

// AddSubscription resolves a subscription URL through the matching provider
// and stores the result. Returns the existing record and
// ErrSubscriptionExists when the channel is already tracked.
func (t *Tracker) AddSubscription(ctx context.Context, rawURL string) (*subwatch.Subscription, error) {
	p, err := t.config.Providers.Match(rawURL)
	if err != nil {
		return nil, err
	}
	sub, err := p.FetchSubscription(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if existing, err := t.config.Store.GetSubscriptionByChannel(sub.Provider, sub.ChannelID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, ErrSubscriptionExists
	}
	if err := t.config.Store.InsertSubscription(sub); err != nil {
		return nil, err
	}
	t.log.Infow("subscription added", "provider", sub.Provider, "name", sub.Name)
	t.events.Publish(SubscriptionAdded{Subscription: *sub})
	return sub, nil
}

// SyncSubscription fetches the latest batch of videos for a subscription and
// stores the ones not seen before, marking them as new.
func (t *Tracker) SyncSubscription(ctx context.Context, sub *subwatch.Subscription) ([]subwatch.Video, error) {
	p, err := t.config.Providers.Get(sub.Provider)
	if err != nil {
		return nil, err
	}
	videos, err := p.FetchVideos(ctx, sub)
	if err != nil {
		return nil, err
	}
	var discovered []subwatch.Video
	for i := range videos {
		video := &videos[i]
		seen, err := t.config.Store.HasVideo(sub.ID, video.VideoID)
		if err != nil {
			return discovered, err
		}
		if seen {
			continue
		}
		video.SubscriptionID = sub.ID
		video.New = true
		if err := t.config.Store.InsertVideo(video); err != nil {
			return discovered, err
		}
		discovered = append(discovered, *video)
	}
	sub.LastSynced = time.Now()
	if err := t.config.Store.SaveSubscription(sub); err != nil {
		return discovered, err
	}
	if len(discovered) > 0 {
		t.log.Infow("new videos discovered", "subscription", sub.Name, "count", len(discovered))
		t.events.Publish(VideosDiscovered{Subscription: *sub, Videos: discovered})
	}
	return discovered, nil
}

// RefreshVideos refreshes the stored videos of a subscription through its
// provider and persists only the ones that actually changed. Individual video
// failures do not abort the batch.
func (t *Tracker) RefreshVideos(ctx context.Context, sub *subwatch.Subscription, opts subwatch.UpdateOptions) error {
	p, err := t.config.Providers.Get(sub.Provider)
	if err != nil {
		return err
	}
	stored, err := t.config.Store.ListVideos(sub.ID)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	before := make([]subwatch.Video, len(stored))
	copy(before, stored)
	videos := make([]*subwatch.Video, len(stored))
	for i := range stored {
		videos[i] = &stored[i]
	}
	result := p.UpdateVideos(ctx, videos, opts)
	for i := range stored {
		changes, err := diff.Diff(before[i], stored[i])
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if len(changes) == 0 {
			continue
		}
		if err := t.config.Store.SaveVideo(&stored[i]); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		t.events.Publish(VideoUpdated{Video: stored[i], Changes: changes})
	}
	return result
}

// SyncAll syncs every subscription and then refreshes its stored videos.
// Per-subscription failures are aggregated, never fatal to the pass.
func (t *Tracker) SyncAll(ctx context.Context, opts subwatch.UpdateOptions) error {
	subs, err := t.config.Store.ListSubscriptions()
	if err != nil {
		return err
	}
	var result error
	for i := range subs {
		sub := &subs[i]
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err)
		}
		if _, err := t.SyncSubscription(ctx, sub); err != nil {
			t.log.Warnw("sync failed", "subscription", sub.Name, "error", err)
			result = multierror.Append(result, fmt.Errorf("subscription %s: %w", sub.Name, err))
			continue
		}
		if err := t.RefreshVideos(ctx, sub, opts); err != nil {
			t.log.Warnw("refresh finished with errors", "subscription", sub.Name, "error", err)
			result = multierror.Append(result, fmt.Errorf("subscription %s: %w", sub.Name, err))
		}
	}
	t.events.Publish(SyncCompleted{Err: result})
	return result
}

// Run syncs all subscriptions immediately and then on every tick of
// Config.SyncInterval, until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, opts subwatch.UpdateOptions) error {
	ticker := time.NewTicker(t.config.SyncInterval)
	defer ticker.Stop()
	for {
		if err := t.SyncAll(ctx, opts); err != nil {
			t.log.Warnw("sync pass finished with errors", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
