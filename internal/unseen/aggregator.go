// Package unseen computes per-sender counts of messages a viewer has not seen.
package unseen

import (
	"context"
	"fmt"
)

// CountSource is the store query backing the aggregator.
type CountSource interface {
	UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error)
}

// Aggregator answers unseen counts from the store on every call.
type Aggregator struct {
	source CountSource
}

func NewAggregator(source CountSource) *Aggregator {
	return &Aggregator{source: source}
}

// Counts returns sender -> unseen count for viewer. Senders with zero are omitted.
func (a *Aggregator) Counts(ctx context.Context, viewerID string) (map[string]int, error) {
	raw, err := a.source.UnseenCounts(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	counts := make(map[string]int, len(raw))
	for sender, n := range raw {
		if n > 0 {
			counts[sender] = n
		}
	}
	return counts, nil
}
