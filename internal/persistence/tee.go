package persistence

import (
	"context"
	"errors"
)

// Tee writes to every store and reads from the first one that can read.
// A write fails only if every store failed.
type Tee []Store

func (t Tee) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	return t.each(func(s Store) error { return s.SaveCheckpoint(ctx, cp) })
}

func (t Tee) SaveRecord(ctx context.Context, r Record) error {
	return t.each(func(s Store) error { return s.SaveRecord(ctx, r) })
}

func (t Tee) each(fn func(Store) error) error {
	var errs []error
	for _, s := range t {
		if err := fn(s); err != nil {
			metricFailures.WithLabelValues("tee").Inc()
			errs = append(errs, err)
		}
	}
	if len(t) > 0 && len(errs) == len(t) {
		return errors.Join(errs...)
	}
	return nil
}

func (t Tee) reader() RecordReader {
	for _, s := range t {
		if r, ok := s.(RecordReader); ok {
			return r
		}
	}
	return nil
}

func (t Tee) GetRecord(ctx context.Context, sessionID string) (Record, error) {
	r := t.reader()
	if r == nil {
		return Record{}, ErrNotFound
	}
	return r.GetRecord(ctx, sessionID)
}

func (t Tee) ListRecords(ctx context.Context) ([]Record, error) {
	r := t.reader()
	if r == nil {
		return nil, nil
	}
	return r.ListRecords(ctx)
}
