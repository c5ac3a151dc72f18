package youtube

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	ytdl "github.com/kkdai/youtube/v2"

	"github.com/subwatch/subwatch"
)

const ProviderID = "youtube"

const (
	defaultSiteBaseURL = "https://www.youtube.com"
	defaultFeedBaseURL = "https://www.youtube.com/feeds/videos.xml"
	defaultPageSize    = 25
)

var settings = subwatch.Settings{
	{
		Key:         "page_size",
		Label:       "Page size",
		Description: "How many videos to fetch per sync batch.",
		Type:        subwatch.SettingInteger,
		Default:     defaultPageSize,
		Min:         1,
		Max:         50,
	},
	{
		Key:         "api_key",
		Label:       "API key",
		Description: "Optional YouTube Data API key, reserved for richer statistics lookups.",
		Type:        subwatch.SettingSecret,
	},
}

// videoClient is the part of the youtube download client used for metadata
// and statistics lookups.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*ytdl.Video, error)
}

// Provider implements subwatch.VideoProvider for YouTube channels. Cheap
// listing goes through the channel's Atom feed; per-video refreshes go
// through the youtube client.
type Provider struct {
	mu       sync.Mutex
	state    subwatch.ProviderState
	pageSize int
	apiKey   string

	httpClient *http.Client
	video      videoClient

	// Overridable in tests.
	siteBaseURL string
	feedBaseURL string
}

func New() *Provider {
	return &Provider{
		state:       subwatch.StateNotConfigured,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		video:       &ytdl.Client{},
		siteBaseURL: defaultSiteBaseURL,
		feedBaseURL: defaultFeedBaseURL,
	}
}

func (p *Provider) Info() subwatch.ProviderInfo {
	return subwatch.ProviderInfo{
		ID:          ProviderID,
		Name:        "YouTube",
		Description: "Tracks YouTube channels and their uploads.",
		Settings:    settings,
	}
}

func (p *Provider) State() subwatch.ProviderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Provider) ValidateConfiguration(config subwatch.Configuration) error {
	return settings.Validate(config)
}

func (p *Provider) Configure(_ context.Context, config subwatch.Configuration) error {
	if err := settings.Validate(config); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = settings.Int(config, "page_size")
	p.apiKey = settings.String(config, "api_key")
	p.state = subwatch.StateOK
	return nil
}

func (p *Provider) Unconfigure(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = 0
	p.apiKey = ""
	p.state = subwatch.StateNotConfigured
	return nil
}

func (p *Provider) SubscriptionURL(sub *subwatch.Subscription) string {
	return fmt.Sprintf("%s/channel/%s", p.siteBaseURL, sub.ChannelID)
}

func (p *Provider) VideoURL(video *subwatch.Video) string {
	return fmt.Sprintf("%s/watch?v=%s", p.siteBaseURL, video.VideoID)
}

func (p *Provider) ValidateSubscriptionURL(rawURL string) error {
	_, err := parseSubscriptionURL(rawURL)
	return err
}

func (p *Provider) FetchSubscription(ctx context.Context, rawURL string) (*subwatch.Subscription, error) {
	if err := p.requireConfigured(); err != nil {
		return nil, err
	}
	ref, err := parseSubscriptionURL(rawURL)
	if err != nil {
		return nil, err
	}
	channelID := ref.name
	if ref.kind != refChannel {
		if channelID, err = p.resolveChannelID(ctx, ref); err != nil {
			return nil, err
		}
	}
	feed, err := p.fetchFeed(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &subwatch.Subscription{
		Provider:  ProviderID,
		ChannelID: channelID,
		Name:      feed.Title,
	}, nil
}

func (p *Provider) FetchVideos(ctx context.Context, sub *subwatch.Subscription) ([]subwatch.Video, error) {
	if err := p.requireConfigured(); err != nil {
		return nil, err
	}
	feed, err := p.fetchFeed(ctx, sub.ChannelID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	pageSize := p.pageSize
	p.mu.Unlock()
	videos := make([]subwatch.Video, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		// The feed is per-channel, but never trust an entry claiming to
		// belong to a different channel.
		if entry.ChannelID != "" && entry.ChannelID != sub.ChannelID {
			continue
		}
		if len(videos) >= pageSize {
			break
		}
		video := subwatch.Video{
			SubscriptionID: sub.ID,
			Provider:       ProviderID,
			VideoID:        entry.VideoID,
			Title:          entry.Title,
			Description:    entry.Media.Description,
			Thumbnail:      entry.Media.Thumbnail.URL,
		}
		if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			video.Published = published
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func (p *Provider) UpdateVideos(ctx context.Context, videos []*subwatch.Video, opts subwatch.UpdateOptions) error {
	if err := p.requireConfigured(); err != nil {
		return err
	}
	if !opts.Metadata && !opts.Statistics {
		return nil
	}
	log := subwatch.Logger(ctx).Sugar().Named(ProviderID)
	var result error
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err)
		}
		details, err := p.video.GetVideoContext(ctx, p.VideoURL(video))
		if err != nil {
			// Deleted and private videos are soft failures; keep going.
			log.Warnw("failed to refresh video", "video_id", video.VideoID, "error", err)
			result = multierror.Append(result, fmt.Errorf("video %s: %w", video.VideoID, err))
			continue
		}
		if opts.Metadata {
			video.Title = details.Title
			video.Description = details.Description
			video.Duration = details.Duration
			if len(details.Thumbnails) > 0 {
				video.Thumbnail = details.Thumbnails[0].URL
			}
		}
		if opts.Statistics {
			video.Views = int64(details.Views)
		}
	}
	return result
}

func (p *Provider) requireConfigured() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != subwatch.StateOK {
		return subwatch.ErrNotConfigured
	}
	return nil
}

// resolveChannelID scrapes the channel page for its canonical /channel/ link,
// which is the only way to turn handles and legacy custom URLs into channel
// IDs without a Data API key.
func (p *Provider) resolveChannelID(ctx context.Context, ref channelRef) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.siteBaseURL+ref.pagePath(), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch channel page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", &subwatch.InvalidURLError{URL: ref.pagePath(), Reason: "channel not found"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("channel page returned HTTP %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse channel page: %w", err)
	}
	href, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	const marker = "/channel/"
	if i := strings.Index(href, marker); i >= 0 {
		return strings.TrimSuffix(href[i+len(marker):], "/"), nil
	}
	return "", fmt.Errorf("channel page has no canonical channel link")
}

func init() {
	subwatch.DefaultProviderRegistry.MustAdd(New())
}
