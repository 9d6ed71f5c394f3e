package buffer

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

// ConversationBuffer holds the per-group tail of raw messages that have not
// yet closed into an episode. Capped ring semantics: only the most recent
// maxLength messages survive.
type ConversationBuffer interface {
	Get(ctx context.Context, groupID string, limit int) ([]types.RawMessage, error)
	Append(ctx context.Context, groupID string, messages []types.RawMessage) error
	Clear(ctx context.Context, groupID string) error
}

type conversationBuffer struct {
	rdb       *goredis.Client
	log       *logger.Logger
	prefix    string
	maxLength int
}

func NewConversationBuffer(rdb *goredis.Client, baseLog *logger.Logger) (ConversationBuffer, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &conversationBuffer{
		rdb:       rdb,
		log:       baseLog.With("service", "ConversationBuffer"),
		prefix:    envutil.Str("CB_KEY_PREFIX", "cb"),
		maxLength: envutil.Int("CB_MAX_LENGTH", 1000),
	}, nil
}

func (b *conversationBuffer) key(groupID string) string {
	return fmt.Sprintf("%s:%s", b.prefix, groupID)
}

// Get returns up to limit of the most recent messages in chronological order.
func (b *conversationBuffer) Get(ctx context.Context, groupID string, limit int) ([]types.RawMessage, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id required")
	}
	if limit <= 0 || limit > b.maxLength {
		limit = b.maxLength
	}

	raws, err := b.rdb.LRange(ctx, b.key(groupID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("buffer read: %w", err)
	}

	out := make([]types.RawMessage, 0, len(raws))
	for _, raw := range raws {
		var msg types.RawMessage
		if uErr := json.Unmarshal([]byte(raw), &msg); uErr != nil {
			b.log.Warn("skipping undecodable buffered message", "group_id", groupID, "error", uErr)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (b *conversationBuffer) Append(ctx context.Context, groupID string, messages []types.RawMessage) error {
	if groupID == "" {
		return fmt.Errorf("group id required")
	}
	if len(messages) == 0 {
		return nil
	}

	encoded := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		encoded = append(encoded, raw)
	}

	pipe := b.rdb.TxPipeline()
	pipe.RPush(ctx, b.key(groupID), encoded...)
	pipe.LTrim(ctx, b.key(groupID), int64(-b.maxLength), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("buffer append: %w", err)
	}
	return nil
}

func (b *conversationBuffer) Clear(ctx context.Context, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("group id required")
	}
	return b.rdb.Del(ctx, b.key(groupID)).Err()
}
