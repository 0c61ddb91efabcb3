package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is the durable persistence capability for carts. Items and the active
// discount live under two distinct keys; absent data means an empty cart.
type Store interface {
	LoadItems(ctx context.Context, cartID string) ([]Item, error)
	SaveItems(ctx context.Context, cartID string, items []Item) error
	LoadDiscount(ctx context.Context, cartID string) (*DiscountCode, error)
	// SaveDiscount persists the active discount; nil clears it.
	SaveDiscount(ctx context.Context, cartID string, dc *DiscountCode) error
}

// cartTTL bounds how long an abandoned cart survives.
const cartTTL = 30 * 24 * time.Hour

// RedisStore persists carts as JSON in Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func itemsKey(cartID string) string    { return fmt.Sprintf("cart:%s:items", cartID) }
func discountKey(cartID string) string { return fmt.Sprintf("cart:%s:discount", cartID) }

func (s *RedisStore) LoadItems(ctx context.Context, cartID string) ([]Item, error) {
	raw, err := s.rdb.Get(ctx, itemsKey(cartID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed cart items: %w", err)
	}
	return items, nil
}

func (s *RedisStore) SaveItems(ctx context.Context, cartID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}
	return s.rdb.Set(ctx, itemsKey(cartID), raw, cartTTL).Err()
}

func (s *RedisStore) LoadDiscount(ctx context.Context, cartID string) (*DiscountCode, error) {
	raw, err := s.rdb.Get(ctx, discountKey(cartID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart discount: %w", err)
	}

	var dc DiscountCode
	if err := json.Unmarshal(raw, &dc); err != nil {
		return nil, fmt.Errorf("malformed cart discount: %w", err)
	}
	return &dc, nil
}

func (s *RedisStore) SaveDiscount(ctx context.Context, cartID string, dc *DiscountCode) error {
	if dc == nil {
		return s.rdb.Del(ctx, discountKey(cartID)).Err()
	}
	raw, err := json.Marshal(dc)
	if err != nil {
		return fmt.Errorf("failed to marshal cart discount: %w", err)
	}
	return s.rdb.Set(ctx, discountKey(cartID), raw, cartTTL).Err()
}

// MemoryStore is an in-memory Store used by tests. It keeps the serialized
// form so rehydration exercises the same JSON round-trip as Redis.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string][]byte
	discounts map[string][]byte
}

// NewMemoryStore creates an empty in-memory cart store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string][]byte),
		discounts: make(map[string][]byte),
	}
}

func (s *MemoryStore) LoadItems(ctx context.Context, cartID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.items[cartID]
	if !ok {
		return nil, nil
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed cart items: %w", err)
	}
	return items, nil
}

func (s *MemoryStore) SaveItems(ctx context.Context, cartID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cartID] = raw
	return nil
}

func (s *MemoryStore) LoadDiscount(ctx context.Context, cartID string) (*DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.discounts[cartID]
	if !ok {
		return nil, nil
	}
	var dc DiscountCode
	if err := json.Unmarshal(raw, &dc); err != nil {
		return nil, fmt.Errorf("malformed cart discount: %w", err)
	}
	return &dc, nil
}

func (s *MemoryStore) SaveDiscount(ctx context.Context, cartID string, dc *DiscountCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dc == nil {
		delete(s.discounts, cartID)
		return nil
	}
	raw, err := json.Marshal(dc)
	if err != nil {
		return err
	}
	s.discounts[cartID] = raw
	return nil
}

// SetRawItems injects raw stored bytes, letting tests simulate corrupted data.
func (s *MemoryStore) SetRawItems(cartID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cartID] = raw
}
