package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "zedflip/internal/app/outbox"
	"zedflip/internal/app/uow"
)

// Sink receives flushed outbox records.
type Sink func(ctx context.Context, record appoutbox.EventRecord) error

// Outbox stages records until their unit of work commits and hands them to
// Sink on Flush. Records of a rolled back unit never become pending.
type Outbox struct {
	mu      sync.Mutex
	records []appoutbox.EventRecord
	sink    Sink
}

func NewOutbox(sink Sink) *Outbox {
	return &Outbox{sink: sink}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	uow.AfterCommit(ctx, func(context.Context) {
		o.mu.Lock()
		o.records = append(o.records, record)
		o.mu.Unlock()
	})
	return nil
}

// Flush drains pending records into the sink. A failing record is reported
// but does not stop the rest.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.records
	o.records = nil
	o.mu.Unlock()
	if o.sink == nil {
		return nil
	}
	var errs []error
	for _, rec := range pending {
		if err := o.sink(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports how many committed records wait for a flush.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
