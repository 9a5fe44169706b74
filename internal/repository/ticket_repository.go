package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

// ErrTicketNotFound is returned when a service ticket is absent or already consumed.
var ErrTicketNotFound = fmt.Errorf("service ticket not found")

const ticketKeyPrefix = "cas:ticket:"

// TicketRepository stores single-use CAS service tickets in Redis with a TTL.
type TicketRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(client *redis.Client, ttl time.Duration) *TicketRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TicketRepository{client: client, ttl: ttl}
}

// Store persists the ticket payload under its ticket ID.
func (r *TicketRepository) Store(ctx context.Context, ticket string, payload models.TicketPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ticket payload: %w", err)
	}
	if err := r.client.Set(ctx, ticketKeyPrefix+ticket, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set ticket: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the ticket so it validates at most once.
func (r *TicketRepository) Consume(ctx context.Context, ticket string) (*models.TicketPayload, error) {
	raw, err := r.client.GetDel(ctx, ticketKeyPrefix+ticket).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("redis getdel ticket: %w", err)
	}
	var payload models.TicketPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal ticket payload: %w", err)
	}
	return &payload, nil
}
