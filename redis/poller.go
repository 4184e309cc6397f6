package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Streams represents a Redis stream key to ID mapping, adapted from the
// teacher's icingaredis.Streams.
type Streams map[string]string

// Option returns the Redis stream key to ID mapping as a slice of stream
// keys followed by their IDs, the shape the Redis STREAMS option expects.
func (s Streams) Option() []string {
	streams := make([]string, 0, len(s)*2)
	ids := make([]string, 0, len(s))

	for key, id := range s {
		streams = append(streams, key)
		ids = append(ids, id)
	}

	return append(streams, ids...)
}

// StreamPoller implements async.Poller (see the async package, C5) over one
// or more Redis streams via XReadUntilResult, giving the stream processing
// framework a concrete production backend instead of only the in-memory
// pollers used in tests. Each successfully read message advances that
// stream's last-seen ID, so a subsequent Poll only returns new entries.
type StreamPoller struct {
	client  *Client
	streams Streams
	count   int64
}

// NewStreamPoller polls streams (mutated in place as entries are read)
// starting at their current IDs, reading up to count entries per XREAD
// call. Use "$" as a stream's starting ID to skip history and see only new
// entries, or "0" to replay from the beginning.
func NewStreamPoller(client *Client, streams Streams, count int64) *StreamPoller {
	return &StreamPoller{client: client, streams: streams, count: count}
}

// Poll implements async.Poller.
func (p *StreamPoller) Poll(ctx context.Context) ([]interface{}, error) {
	results, err := p.client.XReadUntilResult(ctx, &redis.XReadArgs{
		Streams: p.streams.Option(),
		Count:   p.count,
	})
	if err != nil {
		return nil, err
	}

	return advanceStreams(p.streams, results), nil
}

// advanceStreams records the last-seen ID per stream and flattens every
// message across all streams into a single batch, split out of Poll so the
// ID-bookkeeping logic is testable without a live Redis server.
func advanceStreams(streams Streams, results []redis.XStream) []interface{} {
	var out []interface{}

	for _, stream := range results {
		for _, msg := range stream.Messages {
			streams[stream.Stream] = msg.ID
			out = append(out, msg)
		}
	}

	return out
}
