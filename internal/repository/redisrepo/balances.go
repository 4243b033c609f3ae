// Package redisrepo keeps XP balances in Redis. Every mutation is a single
// INCRBY or Lua script, so Redis serializes concurrent writers for a user.
package redisrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/baharkarakas/xp-ledger/internal/repository"
)

const keyPrefix = "xp:balance:"

var debitScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if cur < amt then
  return {0, cur}
end
return {1, redis.call('DECRBY', KEYS[1], amt)}
`)

var debitClampedScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local take = math.min(cur, tonumber(ARGV[1]))
if take <= 0 then
  return {cur, cur}
end
return {cur, redis.call('DECRBY', KEYS[1], take)}
`)

type balancesRepo struct{ rdb *redis.Client }

func NewBalances(rdb *redis.Client) repository.Balances {
	return &balancesRepo{rdb: rdb}
}

func balanceKey(userID string) string { return keyPrefix + userID }

func (r *balancesRepo) Get(ctx context.Context, userID string) (int64, error) {
	n, err := r.rdb.Get(ctx, balanceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *balancesRepo) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	return r.rdb.IncrBy(ctx, balanceKey(userID), amount).Result()
}

func (r *balancesRepo) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	res, err := debitScript.Run(ctx, r.rdb, []string{balanceKey(userID)}, amount).Slice()
	if err != nil {
		return 0, err
	}
	ok, balance, err := pair(res)
	if err != nil {
		return 0, err
	}
	if ok == 0 {
		return balance, repository.ErrInsufficientFunds
	}
	return balance, nil
}

func (r *balancesRepo) DebitClamped(ctx context.Context, userID string, amount int64) (int64, int64, error) {
	res, err := debitClampedScript.Run(ctx, r.rdb, []string{balanceKey(userID)}, amount).Slice()
	if err != nil {
		return 0, 0, err
	}
	return pair(res)
}

func pair(res []interface{}) (int64, int64, error) {
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("redisrepo: unexpected script reply %v", res)
	}
	a, ok1 := res[0].(int64)
	b, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("redisrepo: unexpected script reply %v", res)
	}
	return a, b, nil
}
