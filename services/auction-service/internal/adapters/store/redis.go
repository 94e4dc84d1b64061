package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

const (
	keyPrefix = "auction:"
	indexKey  = "auctions"

	// Fixed-width UTC layout so timestamps compare lexicographically inside Lua.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Hash fields of one auction record.
const (
	fieldProductID     = "productId"
	fieldArtistID      = "artistId"
	fieldRequestID     = "requestId"
	fieldStartingPrice = "startingPrice"
	fieldCurrentPrice  = "currentPrice"
	fieldIncrement     = "incrementPercentage"
	fieldStatus        = "status"
	fieldStartDate     = "startDate"
	fieldEndDate       = "endDate"
	fieldCreatedAt     = "createdAt"
	fieldLastBidTime   = "lastBidTime"
	fieldLastBidder    = "lastBidder"
	fieldBidCount      = "bidCount"
	fieldBids          = "bids"
)

// forwardPatch writes status and endDate only when they move forward, and never
// recreates a deleted record.
var forwardPatch = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local rank = {scheduled = 0, active = 1, ended = 2}
local changed = 0
if ARGV[1] ~= '' then
  local cur = redis.call('HGET', KEYS[1], 'status')
  if not cur or rank[ARGV[1]] > (rank[cur] or -1) then
    redis.call('HSET', KEYS[1], 'status', ARGV[1])
    changed = 1
  end
end
if ARGV[2] ~= '' then
  local cur = redis.call('HGET', KEYS[1], 'endDate')
  if not cur or ARGV[2] > cur then
    redis.call('HSET', KEYS[1], 'endDate', ARGV[2])
    changed = 1
  end
end
return changed
`)

// RedisStore keeps one hash per auction and commits transactions with
// WATCH/MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	exec   failsafe.Executor[*auctions.Auction]
}

// NewRedisStore creates a new Redis-backed auction store
func NewRedisStore(client *redis.Client, cfg RetryConfig) *RedisStore {
	return &RedisStore{
		client: client,
		exec:   newConflictExecutor(cfg),
	}
}

func auctionKey(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Read(ctx context.Context, id string) (*auctions.Auction, error) {
	fields, err := s.client.HGetAll(ctx, auctionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read auction: %w", err)
	}
	if len(fields) == 0 {
		return nil, auctions.ErrAuctionNotFound
	}
	return decodeAuction(id, fields)
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]*auctions.Auction, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	if len(ids) == 0 {
		return []*auctions.Auction{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, auctionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read auctions: %w", err)
	}

	out := make([]*auctions.Auction, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Index entry outlived its record.
			continue
		}
		a, err := decodeAuction(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RedisStore) Write(ctx context.Context, id string, patch auctions.Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	var status, endDate string
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	if patch.EndDate != nil {
		endDate = formatTime(*patch.EndDate)
	}

	if err := forwardPatch.Run(ctx, s.client, []string{auctionKey(id)}, status, endDate).Err(); err != nil {
		return fmt.Errorf("failed to write auction fields: %w", err)
	}
	return nil
}

func (s *RedisStore) Transact(ctx context.Context, id string, fn auctions.TransactFunc) (*auctions.Auction, error) {
	key := auctionKey(id)

	return runTransact(ctx, s.exec, func() (*auctions.Auction, error) {
		var committed *auctions.Auction

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("failed to read auction: %w", err)
			}
			if len(fields) == 0 {
				return auctions.ErrAuctionNotFound
			}

			current, err := decodeAuction(id, fields)
			if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			next.ID = id

			values, err := encodeAuction(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, values)
				return nil
			})
			if err != nil {
				return err
			}

			committed = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			metrics.StoreConflictsTotal.WithLabelValues("redis").Inc()
			return nil, errConflict
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	})
}

func (s *RedisStore) Create(ctx context.Context, a *auctions.Auction) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	values, err := encodeAuction(a)
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, auctionKey(a.ID), values)
		pipe.SAdd(ctx, indexKey, a.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create auction: %w", err)
	}
	return a.ID, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, auctionKey(id))
		pipe.SRem(ctx, indexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeAuction(a *auctions.Auction) (map[string]interface{}, error) {
	bids, err := auctions.MarshalBids(a.Bids)
	if err != nil {
		return nil, err
	}

	values := map[string]interface{}{
		fieldProductID:     a.ProductID.String(),
		fieldArtistID:      a.ArtistID.String(),
		fieldRequestID:     a.RequestID.String(),
		fieldStartingPrice: a.StartingPrice.String(),
		fieldCurrentPrice:  a.CurrentPrice.String(),
		fieldIncrement:     a.IncrementPercentage.String(),
		fieldStatus:        string(a.Status),
		fieldStartDate:     formatTime(a.StartDate),
		fieldEndDate:       formatTime(a.EndDate),
		fieldCreatedAt:     formatTime(a.CreatedAt),
		fieldLastBidTime:   "",
		fieldLastBidder:    "",
		fieldBidCount:      strconv.Itoa(a.BidCount),
		fieldBids:          bids,
	}
	if a.LastBidTime != nil {
		values[fieldLastBidTime] = formatTime(*a.LastBidTime)
	}
	if a.LastBidder != nil {
		values[fieldLastBidder] = a.LastBidder.String()
	}
	return values, nil
}

// fieldDecoder accumulates the first decode failure so decodeAuction reads linearly.
type fieldDecoder struct {
	fields map[string]string
	err    error
}

func (d *fieldDecoder) parseUUID(name string) uuid.UUID {
	if d.err != nil {
		return uuid.Nil
	}
	v, err := uuid.Parse(d.fields[name])
	if err != nil {
		d.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return v
}

func (d *fieldDecoder) parseDecimal(name string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(d.fields[name])
	if err != nil {
		d.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return v
}

func (d *fieldDecoder) parseTime(name string) time.Time {
	if d.err != nil {
		return time.Time{}
	}
	v, err := time.Parse(time.RFC3339Nano, d.fields[name])
	if err != nil {
		d.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return v
}

func decodeAuction(id string, fields map[string]string) (*auctions.Auction, error) {
	d := &fieldDecoder{fields: fields}

	a := &auctions.Auction{
		ID:                  id,
		ProductID:           d.parseUUID(fieldProductID),
		ArtistID:            d.parseUUID(fieldArtistID),
		RequestID:           d.parseUUID(fieldRequestID),
		StartingPrice:       d.parseDecimal(fieldStartingPrice),
		CurrentPrice:        d.parseDecimal(fieldCurrentPrice),
		IncrementPercentage: d.parseDecimal(fieldIncrement),
		StartDate:           d.parseTime(fieldStartDate),
		EndDate:             d.parseTime(fieldEndDate),
		CreatedAt:           d.parseTime(fieldCreatedAt),
	}
	if raw := fields[fieldLastBidTime]; raw != "" {
		t := d.parseTime(fieldLastBidTime)
		a.LastBidTime = &t
	}
	if raw := fields[fieldLastBidder]; raw != "" {
		u := d.parseUUID(fieldLastBidder)
		a.LastBidder = &u
	}
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode auction %s: %w", id, d.err)
	}

	status, err := auctions.ParseStatus(fields[fieldStatus])
	if err != nil {
		return nil, fmt.Errorf("failed to decode auction %s: %w", id, err)
	}
	a.Status = status

	if a.BidCount, err = strconv.Atoi(fields[fieldBidCount]); err != nil {
		return nil, fmt.Errorf("failed to decode auction %s: invalid bidCount: %w", id, err)
	}
	if a.Bids, err = auctions.UnmarshalBids(fields[fieldBids]); err != nil {
		return nil, fmt.Errorf("failed to decode auction %s: %w", id, err)
	}
	return a, nil
}
