package coordinator

import (
	"context"

	"github.com/okian/placebadge/internal/domain/model"
)

// Result is the final state of one fetch.
type Result struct {
	Record model.BadgeRecord
	Err    error
}

// Pending is a handle on a fetch started by EnsureBadge.
type Pending struct {
	jobID string
	done  chan struct{}
	res   Result
}

func newPending(jobID string) *Pending {
	return &Pending{jobID: jobID, done: make(chan struct{})}
}

// ID identifies the fetch job.
func (p *Pending) ID() string { return p.jobID }

// Wait blocks until the fetch completes or ctx is done. Abandoning a wait does
// not cancel the fetch.
func (p *Pending) Wait(ctx context.Context) (model.BadgeRecord, error) {
	select {
	case <-p.done:
		return p.res.Record, p.res.Err
	case <-ctx.Done():
		return model.BadgeRecord{}, ctx.Err()
	}
}

// complete must be called exactly once.
func (p *Pending) complete(res Result) {
	p.res = res
	close(p.done)
}
