package pgq

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/yungbote/memstream-backend/internal/types"
)

// QueueItem is the unit delivered through the partitioned queue. All traffic
// for one GroupKey lands in the same partition, so consumers see a group's
// items in score order.
type QueueItem struct {
	GroupKey  string             `json:"group_key"`
	Kind      string             `json:"kind,omitempty"`
	Messages  []types.RawMessage `json:"messages,omitempty"`
	EnqueueMS int64              `json:"enqueue_ms"`
}

// Codec controls how items are serialized into zset members. The choice is
// per-manager and affects only bytes on the wire.
type Codec interface {
	Name() string
	Encode(item QueueItem) ([]byte, error)
	Decode(raw []byte) (QueueItem, error)
}

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "gob":
		return gobCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown pgq codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(item QueueItem) ([]byte, error) {
	return json.Marshal(item)
}

func (jsonCodec) Decode(raw []byte) (QueueItem, error) {
	var item QueueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Encode(item QueueItem) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(raw []byte) (QueueItem, error) {
	var item QueueItem
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&item); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}
