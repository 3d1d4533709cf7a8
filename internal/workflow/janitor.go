package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor removes finished workflows older than the retention period
// until ctx ends. Workflows that never started are removed on the same
// schedule; processing ones are left alone.
func (o *Orchestrator) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Sweep(); n > 0 {
				o.logger.Info("janitor removed workflows", zap.Int("count", n))
			}
		}
	}
}

// Sweep performs one janitor pass and returns how many workflows it removed.
func (o *Orchestrator) Sweep() int {
	cutoff := o.now().Add(-o.cfg.Retention)
	removed := 0
	for _, st := range o.store.List() {
		if st.Status == StatusProcessing {
			continue
		}
		last := st.UpdatedAt
		if st.CompletedAt != nil {
			last = *st.CompletedAt
		}
		if last.After(cutoff) {
			continue
		}
		if o.Cleanup(st.ID) {
			removed++
		}
	}
	return removed
}
