package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wisdom-muso/laso/internal/domain"
)

const (
	latestReadingPrefix = "latest_reading:"
	latestReadingTTL    = 24 * time.Hour
)

// LatestReadingCache keeps each patient's most recent reading so a fresh
// subscriber can be primed without a history query. The store stays the
// source of truth; a cache miss is not an error.
type LatestReadingCache struct {
	rdb goredis.Cmdable
}

func NewLatestReadingCache(rdb goredis.Cmdable) *LatestReadingCache {
	return &LatestReadingCache{rdb: rdb}
}

func latestReadingKey(patientID uuid.UUID) string {
	return latestReadingPrefix + patientID.String()
}

// SetLatest stores the reading as the patient's newest snapshot.
func (c *LatestReadingCache) SetLatest(ctx context.Context, reading *domain.Reading) error {
	encoded, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	if err := c.rdb.Set(ctx, latestReadingKey(reading.PatientID), encoded, latestReadingTTL).Err(); err != nil {
		return fmt.Errorf("failed to store latest reading: %w", err)
	}
	return nil
}

// GetLatest returns the cached reading, or nil when none is cached.
func (c *LatestReadingCache) GetLatest(ctx context.Context, patientID uuid.UUID) (*domain.Reading, error) {
	data, err := c.rdb.Get(ctx, latestReadingKey(patientID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest reading: %w", err)
	}

	var reading domain.Reading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest reading: %w", err)
	}
	return &reading, nil
}
