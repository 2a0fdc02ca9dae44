package streaming

import (
	"bytes"
	"strings"
)

// =============================================================================
// 🧩 帧解码器
// =============================================================================

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// MaxLineBytes 单行上限，超出的行整行丢弃
	MaxLineBytes = 1 << 20
)

// Frame 是一条通过过滤的 data 行。
type Frame struct {
	// Payload 去掉 "data: " 前缀并裁剪空白后的内容
	Payload string
	// Done 为 true 表示遇到了 [DONE] 终止标记
	Done bool

	line    string // 已去除 \r 的原始行，PutBack 时使用
	retried bool   // 该帧曾被放回过
}

// Decoder 按行切分字节流并过滤出 data 帧。
//
// 未形成完整行的尾部保存在缓冲区中，直到下一次 Write 补齐。
// 已消费的前缀按偏移量跳过，写入时再整体前移。
// Decoder 只属于一次流式回合，不可并发使用。
type Decoder struct {
	buf []byte
	off int
	// tail 缓冲区末尾尚无换行符的字节数
	tail int
	// skipping 正在丢弃超长行，直到下一个换行符
	skipping bool
	// held 缓冲区头部是放回的帧
	held bool
	done bool

	dropped int
}

// NewDecoder 创建空缓冲区的解码器
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write 追加一个网络分块。遇到 [DONE] 之后的字节全部丢弃。
func (d *Decoder) Write(chunk []byte) {
	if d.done || len(chunk) == 0 {
		return
	}
	if d.skipping {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return
		}
		d.skipping = false
		chunk = chunk[i+1:]
	}
	d.compact()
	d.buf = append(d.buf, chunk...)

	if j := bytes.LastIndexByte(chunk, '\n'); j >= 0 {
		d.tail = len(chunk) - j - 1
	} else {
		d.tail += len(chunk)
	}
	if d.tail > MaxLineBytes {
		d.buf = d.buf[:len(d.buf)-d.tail]
		d.tail = 0
		d.skipping = true
		d.dropped++
	}
}

// Next 返回下一个完整帧。缓冲区中没有完整行时返回 false。
func (d *Decoder) Next() (Frame, bool) {
	for !d.done {
		rest := d.buf[d.off:]
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			return Frame{}, false
		}
		line := string(rest[:i])
		d.off += i + 1
		held := d.held
		d.held = false

		if f, ok := d.classify(line); ok {
			f.retried = held
			return f, true
		}
	}
	return Frame{}, false
}

// PutBack 把帧连同行终止符放回缓冲区头部，等待更多字节。
func (d *Decoder) PutBack(f Frame) {
	if d.done || f.Done || f.line == "" {
		return
	}
	rest := d.buf[d.off:]
	b := make([]byte, 0, len(f.line)+1+len(rest))
	b = append(b, f.line...)
	b = append(b, '\n')
	d.buf = append(b, rest...)
	d.off = 0
	d.held = true
}

// Hold 对解析为不完整的帧决定是放回等待还是放弃，返回 true 表示已放回。
//
// 行已经以换行符结束，后续字节无法再补齐它。只有它是缓冲区中最后的内容且
// 没有被放回过时才放回一次；否则调用方按格式错误跳过，后面的帧照常处理。
func (d *Decoder) Hold(f Frame) bool {
	if f.retried || d.Buffered() > 0 {
		return false
	}
	d.PutBack(f)
	return true
}

// Flush 在传输结束时按相同规则重扫残余缓冲区，返回剩余帧并清空缓冲区。
// 最后一行即使没有换行符也会被处理。
func (d *Decoder) Flush() []Frame {
	rest := string(d.buf[d.off:])
	d.clear()
	d.skipping = false
	if d.done || strings.TrimSpace(rest) == "" {
		return nil
	}

	var frames []Frame
	for _, line := range strings.Split(rest, "\n") {
		f, ok := d.classify(line)
		if !ok {
			continue
		}
		frames = append(frames, f)
		if f.Done {
			break
		}
	}
	return frames
}

// Done 是否已经看到终止标记
func (d *Decoder) Done() bool {
	return d.done
}

// Buffered 返回当前未解析的字节数
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Dropped 返回因超过 MaxLineBytes 被丢弃的行数
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Reset 丢弃缓冲区并清除终止状态
func (d *Decoder) Reset() {
	d.clear()
	d.skipping = false
	d.done = false
	d.dropped = 0
}

func (d *Decoder) clear() {
	d.buf = d.buf[:0]
	d.off = 0
	d.tail = 0
	d.held = false
}

// compact 已消费前缀超过一半时把未读部分移到开头
func (d *Decoder) compact() {
	if d.off == 0 || d.off < len(d.buf)/2 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}

// classify 对一行应用过滤规则
func (d *Decoder) classify(line string) (Frame, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return Frame{}, false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		d.done = true
		d.clear()
		return Frame{Done: true, line: line}, true
	}
	return Frame{Payload: payload, line: line}, true
}
