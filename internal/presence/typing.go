// Package presence keeps short-lived "staff member is typing" markers per ticket.
package presence

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "presence:typing:"

// TypingStore records typing markers as Redis keys that expire on their own.
type TypingStore struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewTypingStore builds the store. A nil client yields a store that records nothing.
func NewTypingStore(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *TypingStore {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingStore{client: client, ttl: ttl, logger: logger}
}

func typingKey(ticketID, staffID string) string {
	return keyPrefix + ticketID + ":" + staffID
}

// MarkTyping records that staffID is typing on ticketID, refreshing the expiry.
func (s *TypingStore) MarkTyping(ctx context.Context, ticketID, staffID string) error {
	if ticketID == "" || staffID == "" {
		return errors.New("ticket and staff id are required")
	}
	if s.client == nil {
		return nil
	}
	return s.client.Set(ctx, typingKey(ticketID, staffID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}

// StopTyping clears the marker before it expires.
func (s *TypingStore) StopTyping(ctx context.Context, ticketID, staffID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, typingKey(ticketID, staffID)).Err()
}

// Typing returns the staff ids currently typing on ticketID, sorted.
// Redis failures are logged and reported as nobody typing.
func (s *TypingStore) Typing(ctx context.Context, ticketID string) []string {
	if s.client == nil {
		return nil
	}
	prefix := keyPrefix + ticketID + ":"
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			s.logger.Warn("typing lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
			return nil
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(ids)
	return ids
}
