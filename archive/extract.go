package archive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sealpack/sealpack"
	"github.com/sealpack/sealpack/internal/sizing"
)

// maxGroupBytes caps a single coalesced read.
const maxGroupBytes = 4 << 20

// sink receives decoded entries from process.
type sink interface {
	// shouldProcess returns false if this entry should be skipped.
	shouldProcess(e Entry) bool

	// put receives the decoded content of the entry at index.
	put(index int, e Entry, content []byte) error

	// fail receives a read or decode failure. Returning nil continues
	// with the remaining entries; returning an error stops processing.
	fail(index int, e Entry, err error) error
}

// slot is an entry together with its position in the entry table.
type slot struct {
	index int
	entry Entry
}

// rangeGroup represents a contiguous range of entries in the data region.
// All entries in a group are fetched with a single read.
type rangeGroup struct {
	start uint64
	end   uint64
	slots []slot
}

// groupAdjacentEntries groups entries that are adjacent in the data region.
//
// Slots must be sorted by offset. Adjacent entries (where one ends exactly
// where the next begins) share a group until it would exceed maxBytes; an
// entry larger than maxBytes gets a group of its own.
func groupAdjacentEntries(slots []slot, maxBytes uint64) []rangeGroup {
	if len(slots) == 0 {
		return nil
	}
	groups := make([]rangeGroup, 0, len(slots))
	first := slots[0].entry
	current := rangeGroup{start: first.Offset, end: first.Offset + first.Size, slots: []slot{slots[0]}}

	for _, s := range slots[1:] {
		e := s.entry
		end := e.Offset + e.Size
		if e.Offset == current.end && end-current.start <= maxBytes {
			current.end = end
			current.slots = append(current.slots, s)
			continue
		}
		groups = append(groups, current)
		current = rangeGroup{start: e.Offset, end: end, slots: []slot{s}}
	}
	return append(groups, current)
}

// groupResult holds the completed read for a group.
type groupResult struct {
	index int
	group rangeGroup
	data  []byte
	err   error
	held  int64
}

// process reads, decodes and hands every selected entry to s.
//
// Groups are read ahead by up to cfg.workers() readers, bounded by the
// read-ahead byte budget, and consumed in offset order. Entries within a
// group are decoded concurrently.
//
//nolint:gocognit // pipeline coordination between readers and the consumer
func (r *Reader) process(ctx context.Context, stage ProgressStage, s sink) error {
	slots := make([]slot, 0, len(r.entries))
	for i, e := range r.entries {
		if s.shouldProcess(e) {
			slots = append(slots, slot{index: i, entry: e})
		}
	}
	if len(slots) == 0 {
		return nil
	}
	slices.SortStableFunc(slots, func(a, b slot) int {
		switch {
		case a.entry.Offset < b.entry.Offset:
			return -1
		case a.entry.Offset > b.entry.Offset:
			return 1
		default:
			return 0
		}
	})

	groupLimit := uint64(maxGroupBytes)
	if r.cfg.readAhead > 0 {
		groupLimit = min(groupLimit, r.cfg.readAhead)
	}
	groups := groupAdjacentEntries(slots, groupLimit)
	workers := r.cfg.workers()
	r.cfg.log().Debug("processing entries", "stage", stage.String(), "entries", len(slots), "groups", len(groups))

	var budget *semaphore.Weighted
	var budgetLimit int64
	if r.cfg.readAhead > 0 {
		limit, err := sizing.ToInt64(r.cfg.readAhead, sealpack.ErrAlloc)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		budget = semaphore.NewWeighted(limit)
		budgetLimit = limit
	}

	// Budget is acquired by the dispatcher in group order, so the group
	// the consumer waits for never queues behind later ones.
	type readTask struct {
		index int
		held  int64
	}
	readCh := make(chan readTask)
	readyCh := make(chan groupResult, workers)
	eg, ctx := errgroup.WithContext(ctx)

	var readWg sync.WaitGroup
	readWg.Add(workers)
	for range workers {
		eg.Go(func() error {
			defer readWg.Done()
			for task := range readCh {
				g := groups[task.index]
				data, err := r.readRange(g.start, g.end-g.start)
				res := groupResult{index: task.index, group: g, data: data, err: err, held: task.held}
				select {
				case readyCh <- res:
				case <-ctx.Done():
					if budget != nil {
						budget.Release(task.held)
					}
					return ctx.Err()
				}
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(readCh)
		for gi, g := range groups {
			var held int64
			if budget != nil {
				size, err := sizing.ToInt64(g.end-g.start, sealpack.ErrAlloc)
				if err != nil {
					return err
				}
				held = min(size, budgetLimit)
				if err := budget.Acquire(ctx, held); err != nil {
					return err
				}
			}
			select {
			case readCh <- readTask{index: gi, held: held}:
			case <-ctx.Done():
				if budget != nil {
					budget.Release(held)
				}
				return ctx.Err()
			}
		}
		return nil
	})

	go func() {
		readWg.Wait()
		close(readyCh)
	}()

	var filesDone atomic.Int64
	eg.Go(func() error {
		next := 0
		pending := make(map[int]groupResult, workers)
		for next < len(groups) {
			select {
			case res, ok := <-readyCh:
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					return errors.New("archive: read pipeline ended unexpectedly")
				}
				pending[res.index] = res
				for {
					res, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					err := r.processGroup(ctx, res, s, workers, func(e Entry) {
						r.cfg.reportProgress(ProgressEvent{
							Stage:      stage,
							Path:       e.Path,
							FilesDone:  int(filesDone.Add(1)),
							FilesTotal: len(slots),
						})
					})
					if budget != nil {
						budget.Release(res.held)
					}
					if err != nil {
						return err
					}
					next++
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return eg.Wait()
}

// processGroup decodes every entry of a read group and hands it to s.
func (r *Reader) processGroup(ctx context.Context, res groupResult, s sink, workers int, done func(Entry)) error {
	if res.err != nil {
		for _, sl := range res.group.slots {
			if err := s.fail(sl.index, sl.entry, res.err); err != nil {
				return err
			}
			done(sl.entry)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sl := range res.group.slots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := sl.entry.Offset - res.group.start
			stream := res.data[local : local+sl.entry.Size]

			content, err := r.decode(sl.entry, stream)
			if err != nil {
				if err := s.fail(sl.index, sl.entry, err); err != nil {
					return err
				}
			} else if err := s.put(sl.index, sl.entry, content); err != nil {
				return err
			}
			done(sl.entry)
			return nil
		})
	}
	return g.Wait()
}
