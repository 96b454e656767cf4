package workers

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	splitsvc "defilens/internal/services/split"
)

// CategoryRefresherWorker re-warms the protocol category lookup before its
// TTL lapses so request paths rarely pay the rebuild cost.
type CategoryRefresherWorker struct {
	*BaseWorker
	lookup *splitsvc.CategoryLookup
}

// NewCategoryRefresherWorker creates a new category refresher worker.
func NewCategoryRefresherWorker(lookup *splitsvc.CategoryLookup, interval time.Duration) *CategoryRefresherWorker {
	return &CategoryRefresherWorker{
		BaseWorker: NewBaseWorker("category_refresher", interval, true),
		lookup:     lookup,
	}
}

// Run rebuilds the lookup once.
func (w *CategoryRefresherWorker) Run(ctx context.Context) error {
	start := time.Now()

	if err := w.lookup.Refresh(ctx); err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}

	w.RecordRun(time.Since(start))
	w.Log().Info("Refreshed protocol category lookup",
		"protocols", humanize.Comma(int64(w.lookup.Size())),
		"duration", time.Since(start),
	)
	return nil
}
