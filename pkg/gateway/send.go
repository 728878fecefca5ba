package gateway

import (
	"context"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	"github.com/bujia-iot/iot-dotmatrix/pkg/encoder"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/metrics"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/storage"
	"github.com/sirupsen/logrus"
)

// 写上传日志的超时，与调用方ctx无关
const journalTimeout = 2 * time.Second

// UploadResult 一次成功上传的结果
type UploadResult struct {
	ID       string        `json:"id"`
	Address  string        `json:"address"`
	Kind     encoder.Kind  `json:"kind"`
	Bytes    int           `json:"bytes"`
	Writes   int           `json:"writes"`
	Duration time.Duration `json:"duration"`
}

// SendImage 缩放后发送静态图片
func (g *DisplayGateway) SendImage(ctx context.Context, address string, data []byte) (*UploadResult, error) {
	return g.execute(ctx, address, &encoder.ImageContent{
		Source:    data,
		Size:      g.opts.PixelSize,
		ChunkSize: g.opts.ChunkSize,
	})
}

// SendImageRaw 不缩放，按源尺寸发送图片
func (g *DisplayGateway) SendImageRaw(ctx context.Context, address string, data []byte) (*UploadResult, error) {
	return g.execute(ctx, address, &encoder.ImageContent{
		Source:    data,
		Raw:       true,
		ChunkSize: g.opts.ChunkSize,
	})
}

// SendGif 重新编码后发送GIF动画
func (g *DisplayGateway) SendGif(ctx context.Context, address string, data []byte) (*UploadResult, error) {
	return g.execute(ctx, address, &encoder.GifContent{
		Data:      data,
		Size:      g.opts.PixelSize,
		Interval:  g.opts.Interval,
		ChunkSize: g.opts.ChunkSize,
	})
}

// SendGifRaw 原样分片发送GIF，每次写入等待确认
func (g *DisplayGateway) SendGifRaw(ctx context.Context, address string, data []byte) (*UploadResult, error) {
	return g.execute(ctx, address, &encoder.GifContent{
		Data:      data,
		Raw:       true,
		Interval:  g.opts.Interval,
		ChunkSize: g.opts.ChunkSize,
	})
}

// UploadBatch 批量上传多个GIF到轮播槽位，超过12个时截断
func (g *DisplayGateway) UploadBatch(ctx context.Context, address string, files [][]byte, raw bool) (*UploadResult, error) {
	return g.execute(ctx, address, &encoder.BatchContent{
		Files:        files,
		Size:         g.opts.PixelSize,
		Raw:          raw,
		Interval:     g.opts.Interval,
		ChunkSize:    g.opts.ChunkSize,
		ControlPause: g.opts.ControlPause,
		FilePause:    g.opts.FilePause,
	})
}

// SendText 渲染并发送滚动文字
func (g *DisplayGateway) SendText(ctx context.Context, address string, opts TextOptions) (*UploadResult, error) {
	fontSize := opts.FontSize
	if fontSize <= 0 {
		fontSize = g.opts.Text.FontSize
	}
	return g.execute(ctx, address, &encoder.TextContent{
		Text:     opts.Text,
		Font:     opts.Font,
		FontSize: fontSize,
		Layout:   encoder.LayoutFor(opts.Compact, opts.Proportional, opts.Spacing),
		Style:    opts.Style,
		Fonts:    g.opts.Fonts,
	})
}

// execute 编码内容并提交到链路队列
// 编码失败时不建立连接也不发送任何字节
func (g *DisplayGateway) execute(ctx context.Context, address string, content encoder.Content) (*UploadResult, error) {
	address, err := g.resolveAddress(address)
	if err != nil {
		return nil, err
	}

	plan, err := content.Encode(ctx)
	if err != nil {
		g.recordFailure(address, content.Kind(), "", err)
		return nil, err
	}

	l, err := g.link(address)
	if err != nil {
		return nil, err
	}

	res := l.queue.Submit(ctx, &network.UploadJob{Address: address, Plan: plan})
	if res.Err != nil {
		g.recordFailure(address, plan.Kind, res.JobID, res.Err)
		return nil, res.Err
	}

	result := &UploadResult{
		ID:       res.JobID,
		Address:  address,
		Kind:     plan.Kind,
		Bytes:    res.Bytes,
		Writes:   res.Writes,
		Duration: res.Duration,
	}
	g.recordSuccess(result)
	return result, nil
}

func (g *DisplayGateway) recordSuccess(result *UploadResult) {
	metrics.RecordUpload(string(result.Kind), result.Bytes, result.Duration)

	rec := storage.UploadRecord{
		ID:         result.ID,
		Address:    result.Address,
		Kind:       string(result.Kind),
		Status:     constants.UploadSucceeded,
		Bytes:      result.Bytes,
		Writes:     result.Writes,
		DurationMs: result.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	g.store.GetOrCreate(result.Address, "").SetLastUpload(rec)
	g.writeJournal(rec)
}

func (g *DisplayGateway) recordFailure(address string, kind encoder.Kind, jobID string, err error) {
	code := apperrors.CodeOf(err).String()
	metrics.IncrementFailureCount(code)

	g.writeJournal(storage.UploadRecord{
		ID:        jobID,
		Address:   address,
		Kind:      string(kind),
		Status:    constants.UploadFailed,
		Error:     err.Error(),
		ErrorCode: code,
		CreatedAt: time.Now(),
	})
}

func (g *DisplayGateway) writeJournal(rec storage.UploadRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := g.journal.Record(ctx, rec); err != nil {
		logger.WithFields(logrus.Fields{
			"address":  rec.Address,
			"uploadID": rec.ID,
			"error":    err.Error(),
		}).Warn("写入上传日志失败")
	}
}
