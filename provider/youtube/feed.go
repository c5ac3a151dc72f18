package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"

	"github.com/subwatch/subwatch"
)

// feedDocument is the subset of a channel's Atom feed that FetchSubscription
// and FetchVideos need. Element names match by local name, so the yt: and
// media: namespaces need no special handling.
type feedDocument struct {
	Title     string      `xml:"title"`
	ChannelID string      `xml:"channelId"`
	Entries   []feedEntry `xml:"entry"`
}

type feedEntry struct {
	VideoID   string `xml:"videoId"`
	ChannelID string `xml:"channelId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
	Media     struct {
		Description string `xml:"description"`
		Thumbnail   struct {
			URL string `xml:"url,attr"`
		} `xml:"thumbnail"`
	} `xml:"group"`
}

func (p *Provider) fetchFeed(ctx context.Context, channelID string) (*feedDocument, error) {
	feedURL := fmt.Sprintf("%s?channel_id=%s", p.feedBaseURL, url.QueryEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, &subwatch.InvalidURLError{URL: feedURL, Reason: "channel feed not found"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel feed returned HTTP %d", resp.StatusCode)
	}
	var doc feedDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse channel feed: %w", err)
	}
	return &doc, nil
}
