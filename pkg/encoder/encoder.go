// Package encoder 将图片、GIF、文字和批量轮播转换为可直接写入设备的发送计划
//
// 编码只占用CPU，在调用方协程中执行；生成的Plan交给传输层单写者串行发送。
package encoder

import (
	"context"
	"time"
)

// Kind 内容类型，封闭集合
type Kind string

const (
	KindImage   Kind = "image"
	KindGif     Kind = "gif"
	KindText    Kind = "text"
	KindBatch   Kind = "batch"
	KindCommand Kind = "command"
)

// Step 发送计划中的一步：若干次写入，可选等待确认，结束后停顿
type Step struct {
	Name       string
	Writes     [][]byte
	WaitForAck bool
	PauseAfter time.Duration
}

// Bytes 本步写入的总字节数
func (s Step) Bytes() int {
	n := 0
	for _, w := range s.Writes {
		n += len(w)
	}
	return n
}

// Plan 一次上传的完整发送计划
type Plan struct {
	Kind  Kind
	Steps []Step
}

// Bytes 计划总字节数
func (p *Plan) Bytes() int {
	n := 0
	for _, s := range p.Steps {
		n += s.Bytes()
	}
	return n
}

// Writes 计划总写入次数（按帧计，不含传输层的MTU切分）
func (p *Plan) Writes() int {
	n := 0
	for _, s := range p.Steps {
		n += len(s.Writes)
	}
	return n
}

// Content 可编码的显示内容
type Content interface {
	Kind() Kind
	Encode(ctx context.Context) (*Plan, error)
}

// CommandContent 短控制命令（绘图模式、亮度、开关屏、时钟）
type CommandContent struct {
	Name string
	Data []byte
}

// Kind 实现Content
func (c *CommandContent) Kind() Kind { return KindCommand }

// Encode 实现Content
func (c *CommandContent) Encode(ctx context.Context) (*Plan, error) {
	return &Plan{
		Kind:  KindCommand,
		Steps: []Step{{Name: c.Name, Writes: [][]byte{c.Data}}},
	}, nil
}

// payloadPlan 单个分片负载的发送计划
func payloadPlan(kind Kind, name string, chunks [][]byte, ack bool) *Plan {
	return &Plan{
		Kind:  kind,
		Steps: []Step{{Name: name, Writes: chunks, WaitForAck: ack}},
	}
}
