package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type backend interface {
	ListLists(ctx context.Context, boardID string) ([]domain.List, error)
	ListCards(ctx context.Context, listID string) ([]domain.Card, error)
	SaveList(ctx context.Context, l domain.List) error
	SaveLists(ctx context.Context, lists []domain.List) error
	SaveCard(ctx context.Context, c domain.Card) error
	SaveCards(ctx context.Context, cards []domain.Card) error
	RelocateCard(ctx context.Context, c domain.Card, previousListID string) error
}

// Cache wraps a Store with Redis-backed caching of the hot sequence reads
// (a board's lists, a list's cards). Writes evict the affected keys so the
// next read repopulates from the table store. Cache failures degrade to the
// backing store without failing the request.
type Cache struct {
	*Store
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

func listsCacheKey(boardID string) string { return "lists:" + boardID }
func cardsCacheKey(listID string) string  { return "cards:" + listID }

func (c *Cache) ListLists(ctx context.Context, boardID string) ([]domain.List, error) {
	var cached []domain.List
	if c.load(ctx, listsCacheKey(boardID), &cached) {
		return cached, nil
	}
	lists, err := c.base.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listsCacheKey(boardID), lists)
	return lists, nil
}

func (c *Cache) ListCards(ctx context.Context, listID string) ([]domain.Card, error) {
	var cached []domain.Card
	if c.load(ctx, cardsCacheKey(listID), &cached) {
		return cached, nil
	}
	cards, err := c.base.ListCards(ctx, listID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cardsCacheKey(listID), cards)
	return cards, nil
}

func (c *Cache) SaveList(ctx context.Context, l domain.List) error {
	if err := c.base.SaveList(ctx, l); err != nil {
		return err
	}
	c.evict(ctx, listsCacheKey(l.BoardID))
	return nil
}

func (c *Cache) SaveLists(ctx context.Context, lists []domain.List) error {
	if err := c.base.SaveLists(ctx, lists); err != nil {
		return err
	}
	for _, l := range lists {
		c.evict(ctx, listsCacheKey(l.BoardID))
	}
	return nil
}

func (c *Cache) SaveCard(ctx context.Context, card domain.Card) error {
	if err := c.base.SaveCard(ctx, card); err != nil {
		return err
	}
	c.evict(ctx, cardsCacheKey(card.ListID))
	return nil
}

func (c *Cache) SaveCards(ctx context.Context, cards []domain.Card) error {
	if err := c.base.SaveCards(ctx, cards); err != nil {
		return err
	}
	for _, card := range cards {
		c.evict(ctx, cardsCacheKey(card.ListID))
	}
	return nil
}

func (c *Cache) RelocateCard(ctx context.Context, card domain.Card, previousListID string) error {
	if err := c.base.RelocateCard(ctx, card, previousListID); err != nil {
		return err
	}
	c.evict(ctx, cardsCacheKey(card.ListID), cardsCacheKey(previousListID))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}
