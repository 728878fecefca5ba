package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/encoder"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UploadJob 队列中的一次上传
type UploadJob struct {
	ID        string
	Address   string
	Plan      *encoder.Plan
	CreatedAt time.Time
	Timeout   time.Duration
	Context   context.Context

	done chan JobResult
}

// JobResult 上传执行结果
type JobResult struct {
	JobID    string
	Bytes    int
	Writes   int
	Duration time.Duration
	Err      error
}

// QueueStats 队列统计
type QueueStats struct {
	TotalEnqueued  int64 `json:"totalEnqueued"`
	TotalProcessed int64 `json:"totalProcessed"`
	TotalFailed    int64 `json:"totalFailed"`
	TotalTimeout   int64 `json:"totalTimeout"`
	CurrentPending int64 `json:"currentPending"`
}

// PlanExecutor 执行发送计划前确保连接可用
type PlanExecutor interface {
	Connect(ctx context.Context, address string) error
	Send(ctx context.Context, data []byte, waitForAck bool) error
}

// UploadQueue 单个设备链路的上传队列
// 只有一个工作协程，计划严格逐个执行，并发调用方按入队顺序排队
type UploadQueue struct {
	executor       PlanExecutor
	queue          chan *UploadJob
	defaultTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	// 入队与停止互斥，停止后清空队列时不会再有任务写入
	closeMu sync.RWMutex
	closed  bool

	statsMu sync.RWMutex
	stats   QueueStats
}

// NewUploadQueue 创建上传队列
func NewUploadQueue(executor PlanExecutor, size int, defaultTimeout time.Duration) *UploadQueue {
	if size <= 0 {
		size = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadQueue{
		executor:       executor,
		queue:          make(chan *UploadJob, size),
		defaultTimeout: defaultTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start 启动工作协程
func (q *UploadQueue) Start() {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.worker()
	})
}

// Stop 停止队列，等待中的任务以QueueClosed结束
func (q *UploadQueue) Stop() {
	q.stopOnce.Do(func() {
		q.closeMu.Lock()
		q.closed = true
		q.closeMu.Unlock()

		q.cancel()
		q.wg.Wait()

		// 清空未执行的任务
		for {
			select {
			case job := <-q.queue:
				q.updateStats(func(s *QueueStats) { s.CurrentPending-- })
				job.done <- JobResult{JobID: job.ID, Err: apperrors.New(apperrors.ErrQueueClosed, "上传队列已停止")}
			default:
				return
			}
		}
	})
}

// Enqueue 入队，队列满时立即拒绝
func (q *UploadQueue) Enqueue(job *UploadJob) error {
	if job.Plan == nil {
		return apperrors.New(apperrors.ErrInvalidParameter, "发送计划为空")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Context == nil {
		job.Context = context.Background()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Timeout == 0 {
		job.Timeout = q.defaultTimeout
	}
	job.done = make(chan JobResult, 1)

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return apperrors.New(apperrors.ErrQueueClosed, "上传队列已停止")
	}

	select {
	case q.queue <- job:
		q.updateStats(func(s *QueueStats) {
			s.TotalEnqueued++
			s.CurrentPending++
		})
		logger.WithFields(logrus.Fields{
			"jobID":   job.ID,
			"address": job.Address,
			"kind":    job.Plan.Kind,
			"bytes":   job.Plan.Bytes(),
		}).Debug("上传任务已入队")
		return nil
	default:
		return apperrors.Newf(apperrors.ErrQueueFull, "上传队列已满，容量: %d", cap(q.queue))
	}
}

// Submit 入队并等待执行结果
func (q *UploadQueue) Submit(ctx context.Context, job *UploadJob) JobResult {
	if job.Context == nil {
		job.Context = ctx
	}
	if err := q.Enqueue(job); err != nil {
		return JobResult{JobID: job.ID, Err: err}
	}
	select {
	case r := <-job.done:
		return r
	case <-ctx.Done():
		// 任务的Context即调用方ctx，工作协程会尽快中止
		return JobResult{JobID: job.ID, Err: ctx.Err()}
	}
}

// Wait 等待已入队任务的结果
func (job *UploadJob) Wait() JobResult {
	return <-job.done
}

func (q *UploadQueue) worker() {
	defer q.wg.Done()
	logger.Debug("上传队列工作协程启动")

	for {
		select {
		case <-q.ctx.Done():
			logger.Debug("上传队列工作协程退出")
			return
		case job := <-q.queue:
			q.updateStats(func(s *QueueStats) { s.CurrentPending-- })
			job.done <- q.process(job)
		}
	}
}

// process 执行一个发送计划：确保连接、逐步写入、步间停顿
func (q *UploadQueue) process(job *UploadJob) JobResult {
	start := time.Now()
	result := JobResult{JobID: job.ID}
	log := logger.WithFields(logrus.Fields{
		"jobID":   job.ID,
		"address": job.Address,
		"kind":    job.Plan.Kind,
	})

	ctx, cancel := context.WithCancel(job.Context)
	defer cancel()
	if job.Timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, job.Timeout)
		defer tcancel()
	}
	// 队列停止时中止当前任务
	stop := context.AfterFunc(q.ctx, cancel)
	defer stop()

	if err := ctx.Err(); err != nil {
		result.Err = err
		q.recordFailure(job, err, log)
		return result
	}

	if err := q.executor.Connect(ctx, job.Address); err != nil {
		result.Err = err
		q.recordFailure(job, err, log)
		return result
	}

	for i, step := range job.Plan.Steps {
		for _, w := range step.Writes {
			if err := q.executor.Send(ctx, w, step.WaitForAck); err != nil {
				result.Err = fmt.Errorf("步骤%d(%s): %w", i, step.Name, err)
				result.Duration = time.Since(start)
				q.recordFailure(job, result.Err, log)
				return result
			}
			result.Writes++
			result.Bytes += len(w)
		}
		if err := sleepCtx(ctx, step.PauseAfter); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			q.recordFailure(job, err, log)
			return result
		}
	}

	result.Duration = time.Since(start)
	q.updateStats(func(s *QueueStats) { s.TotalProcessed++ })
	log.WithFields(logrus.Fields{
		"bytes":    result.Bytes,
		"writes":   result.Writes,
		"duration": result.Duration.String(),
	}).Info("上传完成")
	return result
}

func (q *UploadQueue) recordFailure(job *UploadJob, err error, log *logrus.Entry) {
	q.updateStats(func(s *QueueStats) {
		s.TotalFailed++
		if errors.Is(err, context.DeadlineExceeded) {
			s.TotalTimeout++
		}
	})
	log.WithFields(logrus.Fields{
		"error":     err.Error(),
		"retryable": apperrors.IsRetryable(err),
	}).Error("上传失败")
}

// updateStats 更新统计信息
func (q *UploadQueue) updateStats(fn func(*QueueStats)) {
	q.statsMu.Lock()
	fn(&q.stats)
	q.statsMu.Unlock()
}

// GetStats 获取队列统计信息
func (q *UploadQueue) GetStats() QueueStats {
	q.statsMu.RLock()
	defer q.statsMu.RUnlock()
	return q.stats
}

// Pending 等待中的任务数
func (q *UploadQueue) Pending() int {
	return len(q.queue)
}
