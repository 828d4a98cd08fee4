package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfOwner deletes the claim only when it still holds our owner token, so a
// claim that expired and was taken by another instance is left alone.
const luaReleaseIfOwner = `
local key = KEYS[1]
local owner = ARGV[1]
if redis.call('GET', key) == owner then
  return redis.call('DEL', key)
end
return 0
`

// OutboxClaim is a per-row SET NX lock shared by relay instances.
type OutboxClaim struct {
	rdb   *rd.Client
	owner string
	ttl   time.Duration
}

func NewOutboxClaim(rdb *rd.Client, ttl time.Duration) *OutboxClaim {
	return &OutboxClaim{rdb: rdb, owner: uuid.NewString(), ttl: ttl}
}

// Claim returns true when this instance now owns the row.
func (c *OutboxClaim) Claim(ctx context.Context, messageID uint) (bool, error) {
	return c.rdb.SetNX(ctx, OutboxClaimKey(messageID), c.owner, c.ttl).Result()
}

func (c *OutboxClaim) Release(ctx context.Context, messageID uint) error {
	return c.rdb.Eval(ctx, luaReleaseIfOwner, []string{OutboxClaimKey(messageID)}, c.owner).Err()
}
