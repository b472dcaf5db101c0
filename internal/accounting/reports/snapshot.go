package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "ledger:reports:bs_snapshots"

// SnapshotStore keeps one balance sheet per generation date so later
// comparatives have a prior figure to compare against.
type SnapshotStore interface {
	Save(ctx context.Context, day time.Time, bs BalanceSheet) error
	Load(ctx context.Context, day time.Time) (BalanceSheet, bool, error)
}

type redisSnapshots struct {
	client *redis.Client
}

// NewSnapshotStore stores snapshots in a Redis hash keyed by date.
func NewSnapshotStore(client *redis.Client) SnapshotStore {
	return &redisSnapshots{client: client}
}

func (s *redisSnapshots) Save(ctx context.Context, day time.Time, bs BalanceSheet) error {
	raw, err := json.Marshal(bs)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, snapshotKey, day.Format(time.DateOnly), raw).Err()
}

func (s *redisSnapshots) Load(ctx context.Context, day time.Time) (BalanceSheet, bool, error) {
	raw, err := s.client.HGet(ctx, snapshotKey, day.Format(time.DateOnly)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BalanceSheet{}, false, nil
	}
	if err != nil {
		return BalanceSheet{}, false, err
	}
	var bs BalanceSheet
	if err := json.Unmarshal(raw, &bs); err != nil {
		return BalanceSheet{}, false, err
	}
	return bs, true, nil
}
