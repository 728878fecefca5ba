package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/encoder"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor 记录写入，可阻塞在gate上
type recordingExecutor struct {
	mu         sync.Mutex
	sent       [][]byte
	acks       []bool
	connectErr error
	gate       chan struct{}
	started    chan struct{}
}

func (e *recordingExecutor) Connect(ctx context.Context, address string) error {
	return e.connectErr
}

func (e *recordingExecutor) Send(ctx context.Context, data []byte, ack bool) error {
	if e.started != nil {
		select {
		case e.started <- struct{}{}:
		default:
		}
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, data)
	e.acks = append(e.acks, ack)
	return nil
}

func commandPlan(b ...byte) *encoder.Plan {
	return &encoder.Plan{
		Kind:  encoder.KindCommand,
		Steps: []encoder.Step{{Name: "cmd", Writes: [][]byte{b}}},
	}
}

func TestUploadQueue_ExecutesPlan(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewUploadQueue(exec, 4, time.Second)
	q.Start()
	defer q.Stop()

	plan := &encoder.Plan{
		Kind: encoder.KindBatch,
		Steps: []encoder.Step{
			{Name: "enable", Writes: [][]byte{{0x04}}, PauseAfter: time.Millisecond},
			{Name: "file", Writes: [][]byte{{0x01}, {0x02}}, WaitForAck: true},
		},
	}
	res := q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: plan})
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 3, res.Writes)
	assert.Equal(t, 3, res.Bytes)

	assert.Equal(t, [][]byte{{0x04}, {0x01}, {0x02}}, exec.sent)
	assert.Equal(t, []bool{false, true, true}, exec.acks)

	stats := q.GetStats()
	assert.Equal(t, int64(1), stats.TotalEnqueued)
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Zero(t, stats.CurrentPending)
}

// 并发提交的计划逐个执行，不交错
func TestUploadQueue_SerializesConcurrentSubmits(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewUploadQueue(exec, 16, time.Second)
	q.Start()
	defer q.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			plan := &encoder.Plan{Steps: []encoder.Step{{Writes: [][]byte{{b}, {b}, {b}}}}}
			assert.NoError(t, q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: plan}).Err)
		}(byte(i))
	}
	wg.Wait()

	require.Len(t, exec.sent, 24)
	for i := 0; i < 24; i += 3 {
		assert.Equal(t, exec.sent[i], exec.sent[i+1])
		assert.Equal(t, exec.sent[i], exec.sent[i+2])
	}
}

func TestUploadQueue_Full(t *testing.T) {
	exec := &recordingExecutor{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	q := NewUploadQueue(exec, 1, time.Second)
	q.Start()
	defer q.Stop()

	first := &UploadJob{Address: testAddress, Plan: commandPlan(1)}
	require.NoError(t, q.Enqueue(first))
	<-exec.started // 工作协程已取走第一个任务

	require.NoError(t, q.Enqueue(&UploadJob{Address: testAddress, Plan: commandPlan(2)}))
	err := q.Enqueue(&UploadJob{Address: testAddress, Plan: commandPlan(3)})
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrQueueFull))

	close(exec.gate)
	assert.NoError(t, first.Wait().Err)
}

func TestUploadQueue_ConnectFailure(t *testing.T) {
	exec := &recordingExecutor{connectErr: apperrors.New(apperrors.ErrDeviceUnavailable, "设备不可用")}
	q := NewUploadQueue(exec, 4, time.Second)
	q.Start()
	defer q.Stop()

	res := q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: commandPlan(1)})
	assert.True(t, apperrors.IsErrCode(res.Err, apperrors.ErrDeviceUnavailable))
	assert.Empty(t, exec.sent)
	assert.Equal(t, int64(1), q.GetStats().TotalFailed)
}

func TestUploadQueue_Timeout(t *testing.T) {
	exec := &recordingExecutor{gate: make(chan struct{})}
	q := NewUploadQueue(exec, 4, 20*time.Millisecond)
	q.Start()
	defer q.Stop()

	res := q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: commandPlan(1)})
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), q.GetStats().TotalTimeout)
}

func TestUploadQueue_Stop(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewUploadQueue(exec, 4, time.Second)

	// 未启动时入队，停止后任务以QueueClosed结束
	job := &UploadJob{Address: testAddress, Plan: commandPlan(1)}
	require.NoError(t, q.Enqueue(job))
	q.Stop()

	assert.True(t, apperrors.IsErrCode(job.Wait().Err, apperrors.ErrQueueClosed))
	err := q.Enqueue(&UploadJob{Address: testAddress, Plan: commandPlan(2)})
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrQueueClosed))
}

// 与Stop并发的Submit都能得到结果，不会永久阻塞
func TestUploadQueue_StopRacesSubmit(t *testing.T) {
	for i := 0; i < 200; i++ {
		q := NewUploadQueue(&recordingExecutor{}, 4, time.Second)
		q.Start()

		results := make(chan JobResult, 8)
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: commandPlan(1)})
			}()
		}
		q.Stop()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("第%d轮有任务未得到结果", i)
		}

		close(results)
		for r := range results {
			if r.Err != nil {
				// 停止时正在执行的任务以context.Canceled结束
				assert.True(t, apperrors.IsErrCode(r.Err, apperrors.ErrQueueClosed) ||
					apperrors.IsErrCode(r.Err, apperrors.ErrQueueFull) ||
					errors.Is(r.Err, context.Canceled), r.Err.Error())
			}
		}
	}
}

// 与真实连接管理器配合：分片按上限写出
func TestUploadQueue_WithConnectionManager(t *testing.T) {
	transport := NewMemoryTransport()
	dev := transport.AddDevice(testAddress, "IDM-TEST", 0)
	m := NewConnectionManager(transport, testOptions())
	q := NewUploadQueue(m, 4, time.Second)
	q.Start()
	defer q.Stop()

	plan := &encoder.Plan{Steps: []encoder.Step{{Writes: [][]byte{pattern(1200)}, WaitForAck: true}}}
	res := q.Submit(context.Background(), &UploadJob{Address: testAddress, Plan: plan})
	require.NoError(t, res.Err)

	assert.True(t, m.IsConnected())
	assert.Len(t, dev.Writes(), 3)
	assert.Equal(t, pattern(1200), dev.Bytes())
}
