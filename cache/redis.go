// Package cache keeps read-through copies of customer balances and the
// dashboard summary in Redis. A nil *Cache is valid and caches nothing, so
// the service runs unchanged when Redis is not configured or unreachable.
//
// Every cached value has a generation counter beside it. Invalidate bumps
// the counter; a miss-fill only lands if the counter is unchanged since the
// miss, so a store read that raced a mutation is never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brickbook/sales-ledger/ledger"
)

const (
	balanceKeyPrefix = "ledger:balance:"
	statsKey         = "ledger:stats"
	genKeyPrefix     = "ledger:gen:"
)

var errStaleFill = errors.New("cache: generation changed since miss")

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Ticket is taken on a miss and handed back to the matching Set call.
type Ticket struct {
	gen   int64
	valid bool
}

// New connects and pings Redis. On failure the client is closed and the
// error returned; callers keep running with a nil cache.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewWithClient(client, ttl), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func balanceKey(id ledger.CustomerID) string {
	return balanceKeyPrefix + string(id)
}

func genKey(key string) string {
	return genKeyPrefix + key
}

// Balance returns the cached balances for a customer. On a miss the ticket
// must be passed to SetBalance.
func (c *Cache) Balance(ctx context.Context, id ledger.CustomerID) (ledger.Balances, Ticket, bool) {
	var b ledger.Balances
	t, ok := c.get(ctx, balanceKey(id), &b)
	if !ok {
		return ledger.Balances{}, t, false
	}
	return b, t, true
}

func (c *Cache) SetBalance(ctx context.Context, id ledger.CustomerID, t Ticket, b ledger.Balances) {
	c.set(ctx, balanceKey(id), t, b)
}

// Stats returns the cached dashboard summary.
func (c *Cache) Stats(ctx context.Context) (*ledger.Stats, Ticket, bool) {
	var st ledger.Stats
	t, ok := c.get(ctx, statsKey, &st)
	if !ok {
		return nil, t, false
	}
	return &st, t, true
}

func (c *Cache) SetStats(ctx context.Context, t Ticket, st *ledger.Stats) {
	c.set(ctx, statsKey, t, st)
}

// Invalidate drops the given customers' balances and the dashboard summary
// and bumps their generations. Call it after every committed mutation.
func (c *Cache) Invalidate(ctx context.Context, ids ...ledger.CustomerID) {
	if c == nil {
		return
	}
	keys := []string{statsKey}
	for _, id := range ids {
		keys = append(keys, balanceKey(id))
	}
	_, _ = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Incr(ctx, genKey(k))
		}
		p.Del(ctx, keys...)
		return nil
	})
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, r getter, key string) (int64, error) {
	gen, err := r.Get(ctx, genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// get reads the generation before the value, so a later Invalidate is
// always visible to set.
func (c *Cache) get(ctx context.Context, key string, dest any) (Ticket, bool) {
	if c == nil {
		return Ticket{}, false
	}
	gen, err := generation(ctx, c.client, key)
	if err != nil {
		return Ticket{}, false
	}
	t := Ticket{gen: gen, valid: true}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return t, false
	}
	if json.Unmarshal(data, dest) != nil {
		return t, false
	}
	return t, true
}

func (c *Cache) set(ctx context.Context, key string, t Ticket, value any) {
	if c == nil || !t.valid {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	gk := genKey(key)
	_ = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := generation(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur != t.gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, gk)
}
