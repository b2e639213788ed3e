package spancache

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// liveRecord is the bookkeeping the retention sweep needs per active
// record.
type liveRecord struct {
	key        string
	receivedAt time.Time
	sizeBytes  int64
}

// sweep is the retention manager: a two-phase pass invoked once after
// each ingest batch. Phase one deletes every TTL-expired record. Phase
// two enforces the item-count and byte-size caps by evicting the
// oldest-written records first. Eviction order follows cache write
// time, independent of trace membership: dropping one span of a trace
// while keeping its siblings is expected.
func (p *Partition) sweep(ctx context.Context, now time.Time) error {
	entries, err := p.store.List(ctx, spanKeyPrefix)
	if err != nil {
		return fmt.Errorf("retention scan: %w", err)
	}

	var (
		expired    []string
		active     []liveRecord
		totalBytes int64
	)
	for _, entry := range entries {
		rec, err := decodeRecord(entry.Value)
		if err != nil {
			// Undecodable entries cannot be served; sweep them with the
			// expired set.
			expired = append(expired, entry.Key)
			continue
		}
		if rec.Expired(now) {
			expired = append(expired, entry.Key)
			continue
		}
		active = append(active, liveRecord{
			key:        entry.Key,
			receivedAt: rec.ReceivedAt,
			sizeBytes:  rec.SizeBytes,
		})
		totalBytes += rec.SizeBytes
	}

	if len(expired) > 0 {
		if err := p.store.Delete(ctx, expired...); err != nil {
			return fmt.Errorf("retention delete expired: %w", err)
		}
		p.metrics.spansExpired(p.env, len(expired))
	}

	if len(active) > p.cfg.MaxItems || totalBytes > p.cfg.MaxBytes {
		sort.Slice(active, func(i, j int) bool {
			if !active[i].receivedAt.Equal(active[j].receivedAt) {
				return active[i].receivedAt.Before(active[j].receivedAt)
			}
			return active[i].key < active[j].key
		})

		var evicted []string
		for len(active) > p.cfg.MaxItems || totalBytes > p.cfg.MaxBytes {
			victim := active[0]
			active = active[1:]
			totalBytes -= victim.sizeBytes
			evicted = append(evicted, victim.key)
		}

		if err := p.store.Delete(ctx, evicted...); err != nil {
			return fmt.Errorf("retention evict: %w", err)
		}
		p.metrics.spansEvicted(p.env, len(evicted))

		p.logger.DebugContext(ctx, "capacity eviction",
			"environment", p.env,
			"evicted", len(evicted),
			"remaining", len(active),
		)
	}

	p.metrics.setCacheSize(p.env, len(active), totalBytes)
	return nil
}
