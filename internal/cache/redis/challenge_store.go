package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// putChallengeLua atomically replaces the outstanding challenge for a
// (vendor, auction) pair: the previous challenge hash, if any, is deleted
// before the new one is written, so a stale code can never be confirmed
// after a fresh submit.
//
// KEYS[1] pair index key
// ARGV[1] new handle
// ARGV[2] challenge JSON
// ARGV[3] code hash
// ARGV[4] TTL in milliseconds
// ARGV[5] challenge key prefix
const putChallengeLua = `
local old = redis.call('GET', KEYS[1])
if old then
    redis.call('DEL', ARGV[5] .. old)
end
local key = ARGV[5] .. ARGV[1]
redis.call('HSET', key, 'data', ARGV[2], 'code_hash', ARGV[3], 'pair', KEYS[1])
redis.call('PEXPIRE', key, ARGV[4])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
return 1
`

// consumeChallengeLua compares a submitted code hash against the stored one
// and deletes the challenge (and its pair index) only on a match, so of two
// concurrent confirms exactly one succeeds. A wrong code leaves the
// challenge in place for another attempt within the TTL.
//
// KEYS[1] challenge key
// ARGV[1] submitted code hash
//
// Returns {0} when the challenge is missing, {1} on hash mismatch, and
// {2, data} on a successful consume.
const consumeChallengeLua = `
local stored = redis.call('HGET', KEYS[1], 'code_hash')
if not stored then
    return {0}
end
if stored ~= ARGV[1] then
    return {1}
end
local data = redis.call('HGET', KEYS[1], 'data')
local pair = redis.call('HGET', KEYS[1], 'pair')
redis.call('DEL', KEYS[1])
if pair then
    redis.call('DEL', pair)
end
return {2, data}
`

// ChallengeStore implements domain.ChallengeStore on Redis. Each challenge
// is a hash keyed by its opaque handle, plus a pair index keyed by
// (vendor, auction) that enforces the one-outstanding-challenge rule.
type ChallengeStore struct {
	rdb       *redis.Client
	putSc     *redis.Script
	consumeSc *redis.Script
}

// NewChallengeStore creates a ChallengeStore backed by the given Client.
func NewChallengeStore(c *Client) *ChallengeStore {
	return &ChallengeStore{
		rdb:       c.Underlying(),
		putSc:     redis.NewScript(putChallengeLua),
		consumeSc: redis.NewScript(consumeChallengeLua),
	}
}

const challengeKeyPrefix = "challenge:"

func challengeKey(handle uuid.UUID) string {
	return challengeKeyPrefix + handle.String()
}

func challengePairKey(vendorID, auctionID uuid.UUID) string {
	return "challenge:pair:" + vendorID.String() + ":" + auctionID.String()
}

// Put stores a challenge under its handle, invalidating any prior
// unconfirmed challenge for the same (vendor, auction) pair.
func (cs *ChallengeStore) Put(ctx context.Context, ch domain.Challenge, ttl time.Duration) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("redis: marshal challenge %s: %w", ch.Handle, err)
	}

	err = cs.putSc.Run(
		ctx,
		cs.rdb,
		[]string{challengePairKey(ch.VendorID, ch.AuctionID)},
		ch.Handle.String(),
		data,
		ch.CodeHash,
		ttl.Milliseconds(),
		challengeKeyPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("redis: put challenge %s: %w", ch.Handle, err)
	}
	return nil
}

// Consume atomically verifies codeHash against the stored challenge and
// removes it on a match. A missing handle (expired, already consumed, or
// superseded by a newer submit) and a hash mismatch both return
// domain.ErrInvalidCode; the caller owns the expiry check on the returned
// challenge.
func (cs *ChallengeStore) Consume(ctx context.Context, handle uuid.UUID, codeHash string) (domain.Challenge, error) {
	result, err := cs.consumeSc.Run(
		ctx,
		cs.rdb,
		[]string{challengeKey(handle)},
		codeHash,
	).Slice()
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("redis: consume challenge %s: %w", handle, err)
	}
	if len(result) == 0 {
		return domain.Challenge{}, fmt.Errorf("redis: consume challenge %s: empty script result", handle)
	}

	status, ok := result[0].(int64)
	if !ok {
		return domain.Challenge{}, fmt.Errorf("redis: consume challenge %s: unexpected status %T", handle, result[0])
	}

	switch status {
	case 0, 1:
		return domain.Challenge{}, domain.ErrInvalidCode
	case 2:
		raw, ok := result[1].(string)
		if !ok {
			return domain.Challenge{}, fmt.Errorf("redis: consume challenge %s: unexpected payload %T", handle, result[1])
		}
		var ch domain.Challenge
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			return domain.Challenge{}, fmt.Errorf("redis: unmarshal challenge %s: %w", handle, err)
		}
		return ch, nil
	default:
		return domain.Challenge{}, fmt.Errorf("redis: consume challenge %s: unexpected status %d", handle, status)
	}
}

// Compile-time interface check.
var _ domain.ChallengeStore = (*ChallengeStore)(nil)
