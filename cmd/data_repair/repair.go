package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/storage/models"
)

// 配置并发数
const concurrency = 5

type staleLister interface {
	ListStaleAnalyses(ctx context.Context, statuses []string, before time.Time, limit int) ([]models.AnalysisRecord, error)
}

type statusUpdater interface {
	UpdateAnalysisStatus(ctx context.Context, analysisID, status, errMsg string) error
}

type requestPublisher interface {
	PublishAnalysisRequest(ctx context.Context, msg *storage.AnalysisRequestMessage) error
}

// repairer 找出停留在 QUEUED/PROCESSING 的记录，重新投递或标记为失败
type repairer struct {
	records    staleLister
	statuses   statusUpdater
	publisher  requestPublisher // 为 nil 时只能标记失败
	markFailed bool
	dryRun     bool
	logger     *log.Logger
	now        func() time.Time
}

type repairSummary struct {
	Found       int
	Republished int
	MarkedFail  int
	Errors      int
}

func (r *repairer) run(ctx context.Context, olderThan time.Duration, limit int) (repairSummary, error) {
	var summary repairSummary

	before := r.now().Add(-olderThan)
	records, err := r.records.ListStaleAnalyses(ctx,
		[]string{constants.StatusQueued, constants.StatusProcessing}, before, limit)
	if err != nil {
		return summary, err
	}
	summary.Found = len(records)
	r.logger.Printf("总共找到 %d 条滞留记录 (早于 %s)", len(records), before.Format(time.RFC3339))
	if r.dryRun {
		for _, rec := range records {
			r.logger.Printf("[dry-run] %s status=%s updated_at=%s key=%s", rec.AnalysisID, rec.Status, rec.UpdatedAt.Format(time.RFC3339), rec.OriginalObjectKey)
		}
		return summary, nil
	}

	// 使用信号量控制并发
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range records {
		rec := records[i]
		wg.Add(1)
		semaphore <- struct{}{}

		go func() {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			republished, err := r.repairOne(ctx, &rec)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Errors++
				r.logger.Printf("修复记录 %s 失败: %v", rec.AnalysisID, err)
			case republished:
				summary.Republished++
			default:
				summary.MarkedFail++
			}
		}()
	}
	wg.Wait()

	return summary, nil
}

// repairOne 返回 true 表示已重新投递，false 表示已标记失败
func (r *repairer) repairOne(ctx context.Context, rec *models.AnalysisRecord) (bool, error) {
	if r.markFailed || r.publisher == nil || rec.OriginalObjectKey == "" {
		reason := fmt.Sprintf("记录停留在 %s 超时，已由修复工具终止", rec.Status)
		if err := r.statuses.UpdateAnalysisStatus(ctx, rec.AnalysisID, constants.StatusFailed, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	msg := &storage.AnalysisRequestMessage{
		AnalysisID:        rec.AnalysisID,
		SubmittedAt:       r.now(),
		Mode:              rec.Mode,
		OriginalFilename:  rec.OriginalFilename,
		OriginalObjectKey: rec.OriginalObjectKey,
	}
	if err := r.publisher.PublishAnalysisRequest(ctx, msg); err != nil {
		return false, fmt.Errorf("重新投递失败: %w", err)
	}
	if err := r.statuses.UpdateAnalysisStatus(ctx, rec.AnalysisID, constants.StatusQueued, ""); err != nil {
		// 消息已经投递，状态稍后会被 worker 覆盖
		r.logger.Printf("重置记录 %s 状态失败: %v", rec.AnalysisID, err)
	}
	return true, nil
}
