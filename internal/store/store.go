package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"

	"github.com/subwatch/subwatch"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store persists subscriptions and videos in a sqlite database. The schema is
// owned by the embedded SQL migrations, not by gorm.
type Store struct {
	db *gorm.DB
}

func New(path string, logger *zap.Logger) (*Store, error) {
	gormLogger := zapgorm2.New(logger.Named("gorm"))
	gormLogger.SetAsDefault()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Migrate() error {
	log := zap.S().Named("store")
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch err {
	case nil:
		log.Info("database migration complete")
	case migrate.ErrNoChange:
		log.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertSubscription adds a new subscription, generating Subscription.ID when
// it is empty.
func (s *Store) InsertSubscription(sub *subwatch.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	return s.db.Create(sub).Error
}

// GetSubscription returns (nil, nil) if the error is only that no such row exists.
func (s *Store) GetSubscription(id string) (*subwatch.Subscription, error) {
	sub := subwatch.Subscription{}
	if err := s.db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionByChannel returns (nil, nil) if the error is only that no
// such row exists.
func (s *Store) GetSubscriptionByChannel(provider, channelID string) (*subwatch.Subscription, error) {
	sub := subwatch.Subscription{}
	if err := s.db.First(&sub, "provider = ? AND channel_id = ?", provider, channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Store) ListSubscriptions() ([]subwatch.Subscription, error) {
	var subs []subwatch.Subscription
	if err := s.db.Order("name").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// SaveSubscription sets all non-ID values of the row identified by Subscription.ID.
func (s *Store) SaveSubscription(sub *subwatch.Subscription) error {
	return s.db.Save(sub).Error
}

// DeleteSubscription deletes the subscription and all its videos.
func (s *Store) DeleteSubscription(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&subwatch.Video{}, "subscription_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete videos: %w", err)
		}
		if err := tx.Delete(&subwatch.Subscription{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// InsertVideo adds a new video, generating Video.ID when it is empty.
func (s *Store) InsertVideo(video *subwatch.Video) error {
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	return s.db.Create(video).Error
}

// HasVideo reports whether the subscription already has a video with the
// given provider-native ID.
func (s *Store) HasVideo(subscriptionID, videoID string) (bool, error) {
	var count int64
	err := s.db.Model(&subwatch.Video{}).
		Where("subscription_id = ? AND video_id = ?", subscriptionID, videoID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ListVideos(subscriptionID string) ([]subwatch.Video, error) {
	var videos []subwatch.Video
	if err := s.db.Order("published DESC").Find(&videos, "subscription_id = ?", subscriptionID).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// SaveVideo sets all non-ID values of the row identified by Video.ID.
func (s *Store) SaveVideo(video *subwatch.Video) error {
	return s.db.Save(video).Error
}
