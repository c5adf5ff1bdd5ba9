package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"perkloop/pkg/models"

	"github.com/redis/go-redis/v9"
)

// SellerCache keeps seller configuration (reward config, subscription,
// geofence, daily offers) in redis with a TTL so the hot scan path does not
// hit postgres on every request. Constructed once during app wiring.
type SellerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSellerCache(client *redis.Client, ttl time.Duration) *SellerCache {
	return &SellerCache{client: client, ttl: ttl}
}

func sellerKey(sellerID string) string {
	return fmt.Sprintf("seller_config:%s", sellerID)
}

// Get returns the cached seller, or nil without error on a cache miss.
func (c *SellerCache) Get(ctx context.Context, sellerID string) (*models.Seller, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, sellerKey(sellerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var seller models.Seller
	if err := json.Unmarshal(data, &seller); err != nil {
		return nil, err
	}
	return &seller, nil
}

func (c *SellerCache) Set(ctx context.Context, seller *models.Seller) error {
	if c == nil || c.client == nil || seller == nil {
		return nil
	}

	data, err := json.Marshal(seller)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sellerKey(seller.ID), data, c.ttl).Err()
}

func (c *SellerCache) Invalidate(ctx context.Context, sellerID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, sellerKey(sellerID)).Err()
}
