package tracker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/subwatch/subwatch"
	"github.com/subwatch/subwatch/internal/provconfig"
)

type memStore struct {
	subscriptions []subwatch.Subscription
	videos        []subwatch.Video
	nextID        int
}

func (s *memStore) InsertSubscription(sub *subwatch.Subscription) error {
	if sub.ID == "" {
		s.nextID++
		sub.ID = fmt.Sprintf("sub-%d", s.nextID)
	}
	s.subscriptions = append(s.subscriptions, *sub)
	return nil
}

func (s *memStore) GetSubscriptionByChannel(provider, channelID string) (*subwatch.Subscription, error) {
	for i := range s.subscriptions {
		if s.subscriptions[i].Provider == provider && s.subscriptions[i].ChannelID == channelID {
			sub := s.subscriptions[i]
			return &sub, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListSubscriptions() ([]subwatch.Subscription, error) {
	return append([]subwatch.Subscription(nil), s.subscriptions...), nil
}

func (s *memStore) SaveSubscription(sub *subwatch.Subscription) error {
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == sub.ID {
			s.subscriptions[i] = *sub
			return nil
		}
	}
	return fmt.Errorf("no such subscription: %s", sub.ID)
}

func (s *memStore) InsertVideo(video *subwatch.Video) error {
	s.videos = append(s.videos, *video)
	return nil
}

func (s *memStore) HasVideo(subscriptionID, videoID string) (bool, error) {
	for i := range s.videos {
		if s.videos[i].SubscriptionID == subscriptionID && s.videos[i].VideoID == videoID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListVideos(subscriptionID string) ([]subwatch.Video, error) {
	var videos []subwatch.Video
	for i := range s.videos {
		if s.videos[i].SubscriptionID == subscriptionID {
			videos = append(videos, s.videos[i])
		}
	}
	return videos, nil
}

func (s *memStore) SaveVideo(video *subwatch.Video) error {
	for i := range s.videos {
		if s.videos[i].SubscriptionID == video.SubscriptionID && s.videos[i].VideoID == video.VideoID {
			s.videos[i] = *video
			return nil
		}
	}
	return fmt.Errorf("no such video: %s", video.VideoID)
}

type memConfigStore struct {
	configs map[string]subwatch.Configuration
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[string]subwatch.Configuration)}
}

func (s *memConfigStore) Load(id string) (subwatch.Configuration, error) {
	return s.configs[id], nil
}

func (s *memConfigStore) List() (map[string]subwatch.Configuration, error) {
	out := make(map[string]subwatch.Configuration, len(s.configs))
	for id, config := range s.configs {
		out[id] = config
	}
	return out, nil
}

func (s *memConfigStore) Save(id string, config subwatch.Configuration) error {
	s.configs[id] = config
	return nil
}

func (s *memConfigStore) Delete(id string) error {
	delete(s.configs, id)
	return nil
}

func (s *memConfigStore) Close() error { return nil }

var _ provconfig.Store = (*memConfigStore)(nil)

// fakeProvider tracks a single fictional channel per provider ID and serves a
// fixed batch of videos.
type fakeProvider struct {
	id       string
	state    subwatch.ProviderState
	settings subwatch.Settings
	channel  subwatch.Subscription
	feed     []subwatch.Video
	views    map[string]int64
	failFeed error
}

var _ subwatch.VideoProvider = (*fakeProvider)(nil)

func newFakeProvider(id string) *fakeProvider {
	return &fakeProvider{
		id:    id,
		state: subwatch.StateNotConfigured,
		settings: subwatch.Settings{
			{Key: "api_key", Label: "API key", Type: subwatch.SettingSecret, Required: true},
		},
		channel: subwatch.Subscription{Provider: id, ChannelID: "chan1", Name: "Fake Channel"},
		views:   map[string]int64{},
	}
}

func (p *fakeProvider) Info() subwatch.ProviderInfo {
	return subwatch.ProviderInfo{ID: p.id, Name: "Fake", Settings: p.settings}
}

func (p *fakeProvider) State() subwatch.ProviderState { return p.state }

func (p *fakeProvider) ValidateConfiguration(config subwatch.Configuration) error {
	return p.settings.Validate(config)
}

func (p *fakeProvider) Configure(_ context.Context, config subwatch.Configuration) error {
	if err := p.settings.Validate(config); err != nil {
		return err
	}
	p.state = subwatch.StateOK
	return nil
}

func (p *fakeProvider) Unconfigure(_ context.Context) error {
	p.state = subwatch.StateNotConfigured
	return nil
}

func (p *fakeProvider) SubscriptionURL(sub *subwatch.Subscription) string {
	return fmt.Sprintf("https://%s.example/%s", p.id, sub.ChannelID)
}

func (p *fakeProvider) ValidateSubscriptionURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "https://"+p.id+".example/") {
		return &subwatch.InvalidURLError{URL: rawURL, Reason: "unrecognised URL"}
	}
	return nil
}

func (p *fakeProvider) FetchSubscription(_ context.Context, rawURL string) (*subwatch.Subscription, error) {
	if err := p.ValidateSubscriptionURL(rawURL); err != nil {
		return nil, err
	}
	sub := p.channel
	return &sub, nil
}

func (p *fakeProvider) VideoURL(video *subwatch.Video) string {
	return fmt.Sprintf("https://%s.example/watch/%s", p.id, video.VideoID)
}

func (p *fakeProvider) FetchVideos(_ context.Context, _ *subwatch.Subscription) ([]subwatch.Video, error) {
	if p.failFeed != nil {
		return nil, p.failFeed
	}
	return append([]subwatch.Video(nil), p.feed...), nil
}

func (p *fakeProvider) UpdateVideos(_ context.Context, videos []*subwatch.Video, opts subwatch.UpdateOptions) error {
	if !opts.Metadata && !opts.Statistics {
		return nil
	}
	for _, video := range videos {
		if views, ok := p.views[video.VideoID]; ok && opts.Statistics {
			video.Views = views
		}
	}
	return nil
}

type env struct {
	store     *memStore
	configs   *memConfigStore
	registry  *subwatch.ProviderRegistry
	provider  *fakeProvider
	tracker   *Tracker
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    &memStore{},
		configs:  newMemConfigStore(),
		registry: &subwatch.ProviderRegistry{},
		provider: newFakeProvider("fake"),
	}
	e.registry.MustAdd(e.provider)
	e.tracker = New(Config{
		Store:        e.store,
		Providers:    e.registry,
		ConfigStore:  e.configs,
		SyncInterval: time.Minute,
	})
	t.Cleanup(e.tracker.Close)
	return e
}

func TestConfigureProvider(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	err := e.tracker.ConfigureProvider(ctx, "missing", subwatch.Configuration{})
	assert.ErrorIs(err, subwatch.ErrUnknownProvider)

	// Validation failure: nothing saved, provider untouched.
	err = e.tracker.ConfigureProvider(ctx, "fake", subwatch.Configuration{})
	var verr *subwatch.ValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(subwatch.StateNotConfigured, e.provider.State())
	assert.Empty(e.configs.configs)

	config := subwatch.Configuration{"api_key": "k"}
	assert.NoError(e.tracker.ConfigureProvider(ctx, "fake", config))
	assert.Equal(subwatch.StateOK, e.provider.State())
	assert.Equal(config, e.configs.configs["fake"])

	assert.NoError(e.tracker.UnconfigureProvider(ctx, "fake"))
	assert.Equal(subwatch.StateNotConfigured, e.provider.State())
	assert.Empty(e.configs.configs)
}

func TestRestoreProviders(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	_ = e.configs.Save("fake", subwatch.Configuration{"api_key": "k"})
	_ = e.configs.Save("gone", subwatch.Configuration{"api_key": "k"})

	assert.NoError(e.tracker.RestoreProviders(ctx))
	assert.Equal(subwatch.StateOK, e.provider.State())
}

func TestRestoreProvidersReportsBadSettings(t *testing.T) {
	assert := assert_.New(t)
	e := newTestEnv(t)

	_ = e.configs.Save("fake", subwatch.Configuration{})

	err := e.tracker.RestoreProviders(context.Background())
	assert.Error(err)
	assert.Contains(err.Error(), "fake")
	assert.Equal(subwatch.StateNotConfigured, e.provider.State())
}

func TestAddSubscription(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	_, err := e.tracker.AddSubscription(ctx, "https://elsewhere.example/chan1")
	assert.ErrorIs(err, subwatch.ErrNoMatch)

	sub, err := e.tracker.AddSubscription(ctx, "https://fake.example/chan1")
	if !assert.NoError(err) {
		return
	}
	assert.NotEmpty(sub.ID)
	assert.Equal("Fake Channel", sub.Name)

	again, err := e.tracker.AddSubscription(ctx, "https://fake.example/chan1")
	assert.ErrorIs(err, ErrSubscriptionExists)
	if assert.NotNil(again) {
		assert.Equal(sub.ID, again.ID)
	}
	assert.Len(e.store.subscriptions, 1)
}

func TestSyncSubscription(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	receiver, err := e.tracker.Subscribe()
	assert.NoError(err)

	sub, err := e.tracker.AddSubscription(ctx, "https://fake.example/chan1")
	if !assert.NoError(err) {
		return
	}
	assert.IsType(SubscriptionAdded{}, <-receiver.Receive())

	e.provider.feed = []subwatch.Video{
		{Provider: "fake", VideoID: "v1", Title: "One"},
		{Provider: "fake", VideoID: "v2", Title: "Two"},
	}
	discovered, err := e.tracker.SyncSubscription(ctx, sub)
	assert.NoError(err)
	if assert.Len(discovered, 2) {
		assert.True(discovered[0].New)
		assert.Equal(sub.ID, discovered[0].SubscriptionID)
	}
	assert.False(sub.LastSynced.IsZero())
	event := <-receiver.Receive()
	if assert.IsType(VideosDiscovered{}, event) {
		assert.Len(event.(VideosDiscovered).Videos, 2)
	}

	// A second pass over the same feed discovers nothing and emits no event.
	discovered, err = e.tracker.SyncSubscription(ctx, sub)
	assert.NoError(err)
	assert.Empty(discovered)
	assert.Len(e.store.videos, 2)

	// One new entry in the feed: only it is discovered.
	e.provider.feed = append(e.provider.feed, subwatch.Video{Provider: "fake", VideoID: "v3", Title: "Three"})
	discovered, err = e.tracker.SyncSubscription(ctx, sub)
	assert.NoError(err)
	if assert.Len(discovered, 1) {
		assert.Equal("v3", discovered[0].VideoID)
	}
}

func TestRefreshVideos(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	sub, err := e.tracker.AddSubscription(ctx, "https://fake.example/chan1")
	if !assert.NoError(err) {
		return
	}
	e.provider.feed = []subwatch.Video{
		{Provider: "fake", VideoID: "v1", Title: "One", Views: 10},
		{Provider: "fake", VideoID: "v2", Title: "Two", Views: 20},
	}
	_, err = e.tracker.SyncSubscription(ctx, sub)
	assert.NoError(err)

	receiver, err := e.tracker.Subscribe()
	assert.NoError(err)

	// Only v1 changed upstream; only it is saved and reported.
	e.provider.views = map[string]int64{"v1": 11}
	assert.NoError(e.tracker.RefreshVideos(ctx, sub, subwatch.UpdateOptions{Statistics: true}))

	videos, _ := e.store.ListVideos(sub.ID)
	assert.Equal(int64(11), videos[0].Views)
	assert.Equal(int64(20), videos[1].Views)

	event := <-receiver.Receive()
	if assert.IsType(VideoUpdated{}, event) {
		updated := event.(VideoUpdated)
		assert.Equal("v1", updated.Video.VideoID)
		assert.NotEmpty(updated.Changes)
	}
	select {
	case extra := <-receiver.Receive():
		t.Fatalf("unexpected extra event: %#v", extra)
	default:
	}

	// No flags requested: nothing changes, no events.
	e.provider.views = map[string]int64{"v1": 99}
	assert.NoError(e.tracker.RefreshVideos(ctx, sub, subwatch.UpdateOptions{}))
	videos, _ = e.store.ListVideos(sub.ID)
	assert.Equal(int64(11), videos[0].Views)
}

func TestSyncAllContinuesPastFailures(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	e := newTestEnv(t)

	broken := newFakeProvider("broken")
	broken.channel = subwatch.Subscription{Provider: "broken", ChannelID: "chanX", Name: "Broken Channel"}
	broken.failFeed = fmt.Errorf("feed unavailable")
	e.registry.MustAdd(broken)

	_, err := e.tracker.AddSubscription(ctx, "https://broken.example/chanX")
	assert.NoError(err)
	_, err = e.tracker.AddSubscription(ctx, "https://fake.example/chan1")
	assert.NoError(err)

	e.provider.feed = []subwatch.Video{{Provider: "fake", VideoID: "v1", Title: "One"}}

	err = e.tracker.SyncAll(ctx, subwatch.UpdateOptions{})
	assert.Error(err)
	assert.Contains(err.Error(), "Broken Channel")

	// The healthy subscription still synced.
	assert.Len(e.store.videos, 1)
	assert.Equal("v1", e.store.videos[0].VideoID)
}
