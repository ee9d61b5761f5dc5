package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"parcel/internal/events"
	"parcel/internal/logging"
	"parcel/internal/services"
)

// Waves returns how many sequential chunks a batch of n files needs at the
// given concurrency.
func Waves(n, concurrency int) int {
	if n <= 0 {
		return 0
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return (n + concurrency - 1) / concurrency
}

type slot struct {
	result *UploadResult
	err    error
	jobID  string
}

// UploadBatch uploads files in consecutive chunks of the configured
// concurrency. Every upload in a chunk settles before the next chunk starts.
// A failing file never affects its siblings. Once ctx ends, files not yet
// started are reported as cancelled.
func (p *Processor) UploadBatch(ctx context.Context, files []File, opts Options) (*BatchResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = p.cfg.Pipeline.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	batchID := uuid.NewString()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, p.logger)
	result := &BatchResult{
		BatchID:    batchID,
		TotalFiles: len(files),
		Results:    []UploadResult{},
		Errors:     []BatchError{},
	}

	p.bus.Publish(events.Event{Type: events.BatchStarted, Subject: batchID, BatchID: batchID, Payload: *result})
	logger.Info("batch started",
		logging.Int("total_files", len(files)),
		logging.Int("concurrency", concurrency),
		logging.String(logging.FieldEventType, "batch_start"),
	)
	start := time.Now()

	slots := make([]slot, len(files))
	for begin := 0; begin < len(files); begin += concurrency {
		end := min(begin+concurrency, len(files))
		if err := services.FromContext(ctx, "batch"); err != nil {
			for i := begin; i < len(files); i++ {
				slots[i].err = err
			}
			break
		}
		result.Waves++

		var wg sync.WaitGroup
		for i := begin; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := p.upload(ctx, files[i], opts, batchID)
				slots[i].result = res
				slots[i].err = err
				if res != nil {
					slots[i].jobID = res.UploadID
				}
			}(i)
		}
		wg.Wait()
	}

	for i, s := range slots {
		if s.err == nil && s.result != nil {
			result.Results = append(result.Results, *s.result)
			continue
		}
		result.Errors = append(result.Errors, BatchError{
			File:     files[i].Info.Name,
			UploadID: s.jobID,
			Error:    s.err.Error(),
			Kind:     services.KindOf(s.err),
		})
	}
	result.Successful = len(result.Results)
	result.Failed = len(result.Errors)

	p.bus.Publish(events.Event{Type: events.BatchCompleted, Subject: batchID, BatchID: batchID, Payload: *result})
	logger.Info("batch completed",
		logging.Int("successful", result.Successful),
		logging.Int("failed", result.Failed),
		logging.Int("waves", result.Waves),
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "batch_complete"),
	)
	return result, nil
}
