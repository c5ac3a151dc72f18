package subwatch

import "time"

// A Subscription is a followed channel or feed on an external platform.
type Subscription struct {
	ID       string `gorm:"primaryKey"`
	Provider string `gorm:"index"`
	// ChannelID is the provider's native identifier for the feed.
	ChannelID   string
	Name        string
	Description string
	Thumbnail   string
	LastSynced  time.Time
}

// A Video is a single content item belonging to a Subscription.
type Video struct {
	ID             string `gorm:"primaryKey"`
	SubscriptionID string `gorm:"index"`
	Provider       string
	// VideoID is the provider's native identifier for the item.
	VideoID     string
	Title       string
	Description string
	Thumbnail   string
	Published   time.Time
	Duration    time.Duration
	Views       int64
	Rating      float64
	New         bool `gorm:"column:is_new"`
	Watched     bool
}
