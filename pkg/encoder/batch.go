package encoder

import (
	"context"
	"fmt"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// BatchContent 多GIF轮播批量上传
type BatchContent struct {
	Files        [][]byte
	Size         int
	Raw          bool
	Interval     uint8
	ChunkSize    int
	ControlPause time.Duration
	FilePause    time.Duration
}

// Kind 实现Content
func (c *BatchContent) Kind() Kind { return KindBatch }

// Encode 实现Content
// 所有文件在发送前编码完成，任一文件失败则整个批量不发送任何字节
func (c *BatchContent) Encode(ctx context.Context) (*Plan, error) {
	if len(c.Files) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "批量上传至少需要一个文件")
	}

	files := c.Files
	if len(files) > constants.MaxBatchSlots {
		logger.WithFields(logrus.Fields{
			"code":     apperrors.ErrBatchLimitExceeded.String(),
			"provided": len(files),
			"limit":    constants.MaxBatchSlots,
		}).Warn("批量文件数超过槽位上限，多余文件已丢弃")
		files = files[:constants.MaxBatchSlots]
	}

	payloads := make([]*protocol.Payload, 0, len(files))
	for i, data := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts := GifOptions{
			Size:      c.Size,
			SlotIndex: uint8(i),
			Interval:  c.Interval,
			ChunkSize: c.ChunkSize,
		}
		var (
			p   *protocol.Payload
			err error
		)
		if c.Raw {
			p, err = FrameRawGif(data, opts)
		} else {
			p, err = encodeGifData(ctx, data, opts)
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrEncodeFailed, fmt.Sprintf("第%d个文件编码失败", i), err)
		}
		payloads = append(payloads, p)
	}

	plan := &Plan{Kind: KindBatch, Steps: make([]Step, 0, len(payloads)+2)}
	plan.Steps = append(plan.Steps,
		Step{Name: "batch_enable", Writes: [][]byte{protocol.BuildBatchEnable()}, PauseAfter: c.ControlPause},
		Step{Name: "batch_header", Writes: [][]byte{protocol.BuildBatchHeader(len(payloads))}, PauseAfter: c.ControlPause},
	)
	for i, p := range payloads {
		step := Step{
			Name:       fmt.Sprintf("slot_%d", i),
			Writes:     p.Chunks,
			WaitForAck: true,
		}
		if i < len(payloads)-1 {
			step.PauseAfter = c.FilePause
		}
		plan.Steps = append(plan.Steps, step)
	}

	logger.WithFields(logrus.Fields{
		"files": len(payloads),
		"bytes": plan.Bytes(),
		"raw":   c.Raw,
	}).Debug("批量发送计划已生成")
	return plan, nil
}
