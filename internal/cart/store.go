package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/brianphil/ecommerce-app/internal/redisx"
)

// Line is one mutable cart entry; quantities change freely until checkout
// freezes them into a snapshot.
type Line struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Store keeps each customer's cart in a redis hash (product id -> qty).
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func key(customerID string) string { return fmt.Sprintf(redisx.KeyCart, customerID) }

// SetItem upserts a cart line; qty <= 0 removes it.
func (s *Store) SetItem(ctx context.Context, customerID, productID string, qty int) error {
	if qty <= 0 {
		return s.rdb.HDel(ctx, key(customerID), productID).Err()
	}
	return s.rdb.HSet(ctx, key(customerID), productID, qty).Err()
}

func (s *Store) Lines(ctx context.Context, customerID string) ([]Line, error) {
	raw, err := s.rdb.HGetAll(ctx, key(customerID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(raw))
	for pid, q := range raw {
		qty, err := strconv.Atoi(q)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart entry %s=%q: %w", pid, q, err)
		}
		out = append(out, Line{ProductID: pid, Qty: qty})
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, customerID string) error {
	return s.rdb.Del(ctx, key(customerID)).Err()
}
