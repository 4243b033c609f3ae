// Package alert escalates ledger states that need an operator.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/baharkarakas/xp-ledger/internal/metrics"
)

const DefaultRedisKey = "xp:alerts"

type Event struct {
	Kind        string    `json:"kind"`
	TerritoryID string    `json:"territory_id,omitempty"`
	OccupantID  string    `json:"occupant_id,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Amount      int64     `json:"amount"`
	Cause       string    `json:"cause"`
	RefundError string    `json:"refund_error,omitempty"`
	At          time.Time `json:"at"`
}

type Alerter interface {
	Critical(ctx context.Context, e Event)
}

// LogAlerter writes the event at ERROR level and bumps the critical counter.
type LogAlerter struct{ Log *slog.Logger }

func (a LogAlerter) Critical(_ context.Context, e Event) {
	metrics.CriticalInconsistencies.Inc()
	a.Log.Error("CRITICAL ledger inconsistency, manual reconciliation required",
		"kind", e.Kind,
		"territory_id", e.TerritoryID,
		"occupant_id", e.OccupantID,
		"owner_id", e.OwnerID,
		"amount", e.Amount,
		"cause", e.Cause,
		"refund_error", e.RefundError,
	)
}

// RedisAlerter pushes JSON events onto a list consumed by operator tooling.
type RedisAlerter struct {
	rdb *redis.Client
	key string
	log *slog.Logger
}

func NewRedisAlerter(rdb *redis.Client, key string, log *slog.Logger) *RedisAlerter {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisAlerter{rdb: rdb, key: key, log: log}
}

func (a *RedisAlerter) Critical(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		a.log.Error("alert encode failed", "err", err)
		return
	}
	if err := a.rdb.RPush(ctx, a.key, data).Err(); err != nil {
		a.log.Error("alert push failed", "key", a.key, "err", err)
	}
}

// Fanout delivers every event to all alerters in order.
type Fanout []Alerter

func (f Fanout) Critical(ctx context.Context, e Event) {
	for _, a := range f {
		a.Critical(ctx, e)
	}
}
