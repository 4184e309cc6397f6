package com

import (
	"context"
	"time"
)

// bulkLinger bounds how long Bulk waits for more input before flushing
// whatever has accumulated so far as its own chunk.
const bulkLinger = 150 * time.Millisecond

// BulkChunkSplitPolicy decides, for a given input item, whether a new chunk has to be started
// before that item is appended to the current chunk.
type BulkChunkSplitPolicy[T any] func(T) bool

// BulkChunkSplitPolicyFactory creates a new, initialized BulkChunkSplitPolicy closure
// for a single call of Bulk. It must not be shared between multiple calls of Bulk.
type BulkChunkSplitPolicyFactory[T any] func() BulkChunkSplitPolicy[T]

// NeverSplit is a BulkChunkSplitPolicyFactory that never demands a split.
func NeverSplit[T any]() BulkChunkSplitPolicy[T] {
	return func(T) bool {
		return false
	}
}

// Bulk groups items from arg into chunks of (up to) count items each and
// sends the chunks to the returned channel.
//
// A chunk is flushed as soon as one of the following happens:
//   - it reaches count items (count <= 0 disables this and relies on the other conditions),
//   - splitPolicy demands a split for the next incoming item, in which case that item
//     starts a new chunk rather than being appended to the one just flushed,
//   - no further item arrives within a short linger period, or
//   - arg is closed or ctx is done, in which case the (possibly partial) chunk is
//     flushed one last time before the output channel is closed.
func Bulk[T any](ctx context.Context, arg <-chan T, count int, splitPolicyFactory BulkChunkSplitPolicyFactory[T]) <-chan []T {
	out := make(chan []T)

	go func() {
		defer close(out)

		splitPolicy := splitPolicyFactory()

		var buf []T

		timer := time.NewTimer(bulkLinger)
		defer timer.Stop()

		resetTimer := func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(bulkLinger)
		}

		// flush sends the current buffer (if non-empty) to out.
		// It returns false if ctx is done before the send could complete.
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}

			chunk := buf
			buf = nil

			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case v, ok := <-arg:
				if !ok {
					flush()
					return
				}

				if splitPolicy(v) {
					if !flush() {
						return
					}
				}

				buf = append(buf, v)
				resetTimer()

				if count > 0 && len(buf) >= count {
					if !flush() {
						return
					}
				}
			case <-timer.C:
				if !flush() {
					return
				}

				resetTimer()
			case <-ctx.Done():
				flush()
				return
			}
		}
	}()

	return out
}
