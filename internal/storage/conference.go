// Package storage is the persistence gateway for durable conference
// metadata. Live room state never depends on it; everything here is
// best-effort bookkeeping.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
)

var ErrNotFound = errors.New("conference not found")

// ConferenceRecord is the gorm model behind domain.Conference.
type ConferenceRecord struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"index"`
	Title            string
	Active           bool
	ParticipantCount int
	PeakParticipants int
	StartedAt        *time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ConferenceRecord) TableName() string { return "conferences" }

func (r ConferenceRecord) toDomain() *domain.Conference {
	return &domain.Conference{
		ID:               domain.RoomID(r.ID),
		OwnerID:          domain.UserID(r.OwnerID),
		Title:            r.Title,
		Active:           r.Active,
		ParticipantCount: r.ParticipantCount,
		PeakParticipants: r.PeakParticipants,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
	}
}

// Store implements core.ConferenceStore on sqlite.
type Store struct {
	db *gorm.DB
}

// Open migrates and returns the store. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&ConferenceRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetConference(ctx context.Context, id domain.RoomID) (*domain.Conference, error) {
	var rec ConferenceRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// EnsureConference creates the record on first join; subsequent calls are
// no-ops returning the current row.
func (s *Store) EnsureConference(ctx context.Context, id domain.RoomID, ownerID domain.UserID) (*domain.Conference, error) {
	rec := ConferenceRecord{ID: string(id), OwnerID: string(ownerID), Active: true}
	err := s.db.WithContext(ctx).
		Where("id = ?", string(id)).
		FirstOrCreate(&rec).Error
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// UpdateConference applies a partial-field update and returns the fresh
// record. Peak participant count ratchets up automatically.
func (s *Store) UpdateConference(ctx context.Context, id domain.RoomID, upd core.ConferenceUpdate) (*domain.Conference, error) {
	now := time.Now()
	fields := map[string]any{}
	if upd.Active != nil {
		fields["active"] = *upd.Active
	}
	if upd.ParticipantCount != nil {
		fields["participant_count"] = *upd.ParticipantCount
	}
	if upd.PeakParticipants != nil {
		fields["peak_participants"] = *upd.PeakParticipants
	}
	if upd.Started {
		fields["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	}
	if upd.Ended {
		fields["ended_at"] = now
	}
	if len(fields) == 0 {
		return s.GetConference(ctx, id)
	}

	res := s.db.WithContext(ctx).
		Model(&ConferenceRecord{}).
		Where("id = ?", string(id)).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	if upd.ParticipantCount != nil {
		// Ratchet the peak. Separate statement keeps the main update simple.
		err := s.db.WithContext(ctx).
			Model(&ConferenceRecord{}).
			Where("id = ? AND peak_participants < ?", string(id), *upd.ParticipantCount).
			Update("peak_participants", *upd.ParticipantCount).Error
		if err != nil {
			return nil, err
		}
	}
	return s.GetConference(ctx, id)
}
