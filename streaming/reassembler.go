package streaming

import (
	"errors"
	"strings"
)

// DefaultApology 流式回合失败时追加的固定致歉文本
const DefaultApology = "Maaf, terjadi kesalahan. Silakan coba lagi dalam beberapa saat."

// ErrFinished 回合已结束后仍有片段到达
var ErrFinished = errors.New("streaming: turn already finished")

// Sink 接收重组后的消息状态变化，通常由会话对象实现。
// 每个方法都应同步通知观察者。
type Sink interface {
	// Open 追加一条空内容的助手占位消息，返回其 ID
	Open() string
	// Append 把片段追加到指定消息末尾
	Append(id, fragment string)
	// Seal 冻结消息，之后不再变化
	Seal(id string)
	// Rollback 出错时调用：id 对应消息若仍为空则移除，然后追加致歉消息。
	// 占位消息尚未创建时 id 为空。
	Rollback(id, apology string)
	// Drop 取消时调用：丢弃 id 对应消息，不做收尾
	Drop(id string)
}

type turnState int

const (
	turnIdle turnState = iota
	turnStreaming
	turnFinished
	turnFailed
	turnCanceled
)

// Reassembler 把片段按解码顺序拼接到活动目标消息上。
// 一个 Reassembler 只服务一次回合，不可并发使用。
type Reassembler struct {
	sink    Sink
	apology string

	id        string
	content   strings.Builder
	fragments int
	state     turnState
}

// ReassemblerOption 配置 Reassembler
type ReassemblerOption func(*Reassembler)

// WithApology 替换默认致歉文本
func WithApology(text string) ReassemblerOption {
	return func(r *Reassembler) {
		if text != "" {
			r.apology = text
		}
	}
}

// NewReassembler 创建绑定到 sink 的重组器
func NewReassembler(sink Sink, opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		sink:    sink,
		apology: DefaultApology,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin 追加占位消息，使其成为活动目标。重复调用无副作用。
func (r *Reassembler) Begin() {
	if r.state != turnIdle {
		return
	}
	r.id = r.sink.Open()
	r.state = turnStreaming
}

// Apply 追加一个片段
func (r *Reassembler) Apply(fragment string) error {
	if r.state == turnIdle {
		r.Begin()
	}
	if r.state != turnStreaming {
		return ErrFinished
	}
	if fragment == "" {
		return nil
	}
	r.content.WriteString(fragment)
	r.fragments++
	r.sink.Append(r.id, fragment)
	return nil
}

// Finish 冻结活动目标并返回累计内容
func (r *Reassembler) Finish() string {
	if r.state == turnStreaming {
		r.sink.Seal(r.id)
		r.state = turnFinished
	}
	return r.content.String()
}

// Fail 回滚空占位并追加致歉消息。已经结束的回合不受影响。
func (r *Reassembler) Fail() {
	if r.state != turnIdle && r.state != turnStreaming {
		return
	}
	r.sink.Rollback(r.id, r.apology)
	r.state = turnFailed
}

// Cancel 丢弃活动目标，不做收尾
func (r *Reassembler) Cancel() {
	if r.state != turnStreaming {
		if r.state == turnIdle {
			r.state = turnCanceled
		}
		return
	}
	r.sink.Drop(r.id)
	r.state = turnCanceled
}

// Content 返回当前累计内容
func (r *Reassembler) Content() string {
	return r.content.String()
}

// Fragments 返回已应用的片段数
func (r *Reassembler) Fragments() int {
	return r.fragments
}

// TargetID 返回活动目标 ID，未开始时为空
func (r *Reassembler) TargetID() string {
	return r.id
}
