package streaming

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DeltaKind 是提取结果的标签
type DeltaKind int

const (
	// DeltaNone 帧是合法 JSON，但没有文本片段
	DeltaNone DeltaKind = iota
	// DeltaComplete 提取到一个片段
	DeltaComplete
	// DeltaIncomplete JSON 被分块截断，需要等待更多字节
	DeltaIncomplete
	// DeltaMalformed JSON 语法或结构错误，跳过该帧
	DeltaMalformed
)

// String returns the label used in logs.
func (k DeltaKind) String() string {
	switch k {
	case DeltaNone:
		return "none"
	case DeltaComplete:
		return "complete"
	case DeltaIncomplete:
		return "incomplete"
	case DeltaMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Delta 是一次提取的结果
type Delta struct {
	Kind     DeltaKind
	Fragment string
	Err      error
}

// chunkPayload 只声明 choices[0].delta.content 路径，其余字段忽略
type chunkPayload struct {
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Extract 从一个帧载荷中取出 choices[0].delta.content。
//
// 载荷在值中途结束时返回 DeltaIncomplete；其余解析失败返回 DeltaMalformed。
// 空字符串片段视为没有片段。
func Extract(payload string) Delta {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Delta{Kind: DeltaNone}
	}

	var p chunkPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		if truncated(err, len(payload)) {
			return Delta{Kind: DeltaIncomplete}
		}
		return Delta{Kind: DeltaMalformed, Err: err}
	}

	if len(p.Choices) == 0 || p.Choices[0].Delta == nil || p.Choices[0].Delta.Content == "" {
		return Delta{Kind: DeltaNone}
	}
	return Delta{Kind: DeltaComplete, Fragment: p.Choices[0].Delta.Content}
}

// truncated 判断解析错误是否只是输入在值中途结束。值后面多出的字节属于格式错误。
func truncated(err error, n int) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var se *json.SyntaxError
	return errors.As(err, &se) && se.Offset >= int64(n) &&
		strings.HasPrefix(se.Error(), "unexpected end of JSON input")
}
