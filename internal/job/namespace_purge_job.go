package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
)

const purgeBatchSize = 100

type purgeQueue interface {
	List(ctx context.Context, limit uint) ([]model.NamespacePurge, error)
	MarkFailed(ctx context.Context, namespace, lastError string, now int64) error
	Remove(ctx context.Context, namespace string) error
}

type namespaceRemover interface {
	Remove(ctx context.Context, ns string) error
}

// NamespacePurgeJob retries index deletions that failed while a document was
// being removed. Entries stay queued until the index accepts the delete.
type NamespacePurgeJob struct {
	queue   purgeQueue
	remover namespaceRemover
}

func NewNamespacePurgeJob(queue purgeQueue, remover namespaceRemover) *NamespacePurgeJob {
	return &NamespacePurgeJob{queue: queue, remover: remover}
}

func (j *NamespacePurgeJob) Name() string {
	return "orphan_namespace_sweep"
}

func (j *NamespacePurgeJob) Run(ctx context.Context) error {
	if j.queue == nil || j.remover == nil {
		return nil
	}
	items, err := j.queue.List(ctx, purgeBatchSize)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	var errs []error
	purged := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.remover.Remove(ctx, item.Namespace); err != nil {
			logger.Warn("namespace purge failed",
				zap.String("namespace", item.Namespace),
				zap.Int("attempts", item.Attempts+1),
				zap.Error(err),
			)
			if markErr := j.queue.MarkFailed(ctx, item.Namespace, err.Error(), timeutil.NowUnix()); markErr != nil {
				errs = append(errs, markErr)
			}
			continue
		}
		if err := j.queue.Remove(ctx, item.Namespace); err != nil {
			errs = append(errs, err)
			continue
		}
		purged++
	}
	if purged > 0 {
		logger.Info("orphan namespaces purged", zap.Int("count", purged), zap.Int("pending", len(items)-purged))
	}
	return errors.Join(errs...)
}
