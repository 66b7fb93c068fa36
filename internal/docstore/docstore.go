package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Per-organization ordered collections. Documents live in sorted sets scored
// by creation time, so query-latest-N is a single ZREVRANGE.
const (
	CollectionBaselines    = "baselines"
	CollectionDriftResults = "drift_results"

	keyPrefix = "grc:docs:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Client struct {
	client *redis.Client
}

func New(cfg Config) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func key(collection string, orgID uuid.UUID) string {
	return keyPrefix + collection + ":" + orgID.String()
}

// Append stores a document in the organization's collection, ordered by
// createdAt. Documents are immutable once written.
func (c *Client) Append(ctx context.Context, collection string, orgID uuid.UUID, createdAt time.Time, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	if err := c.client.ZAdd(ctx, key(collection, orgID), redis.Z{
		Score:  float64(createdAt.UTC().UnixNano()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("appending document: %w", err)
	}

	return nil
}

// Latest returns up to limit raw documents, most recent first.
func (c *Client) Latest(ctx context.Context, collection string, orgID uuid.UUID, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 1
	}

	members, err := c.client.ZRevRange(ctx, key(collection, orgID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	docs := make([][]byte, len(members))
	for i, m := range members {
		docs[i] = []byte(m)
	}
	return docs, nil
}

func (c *Client) Count(ctx context.Context, collection string, orgID uuid.UUID) (int64, error) {
	n, err := c.client.ZCard(ctx, key(collection, orgID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}
	return n, nil
}

// Drop removes an organization's entire collection. Used by organization
// deletion cascade.
func (c *Client) Drop(ctx context.Context, collection string, orgID uuid.UUID) error {
	if err := c.client.Del(ctx, key(collection, orgID)).Err(); err != nil {
		return fmt.Errorf("dropping collection %s: %w", collection, err)
	}
	return nil
}
