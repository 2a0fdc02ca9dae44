package voice

import (
	"context"
	"time"

	"github.com/BaSui01/naya/types"
)

// Utterance 语音通道产生的一条转写或回复
type Utterance struct {
	Role types.Role
	Text string
	At   time.Time
}

// Channel 语音对话通道。Connect 返回的 channel 在连接结束时关闭。
type Channel interface {
	Connect(ctx context.Context) (<-chan Utterance, error)
	Close() error
}

// Capability 本地音频能力（语音合成）。不支持时静默降级为纯文本。
type Capability interface {
	Supported() bool
	Speak(ctx context.Context, text string) error
}

// NoopCapability 没有音频设备时使用
type NoopCapability struct{}

func (NoopCapability) Supported() bool                     { return false }
func (NoopCapability) Speak(context.Context, string) error { return nil }

// AvatarState 头像状态
type AvatarState string

const (
	AvatarIdle      AvatarState = "idle"
	AvatarListening AvatarState = "listening"
	AvatarTalking   AvatarState = "talking"
)

// DeriveAvatar 监听优先，其次是正在生成回复
func DeriveAvatar(listening, busy bool) AvatarState {
	switch {
	case listening:
		return AvatarListening
	case busy:
		return AvatarTalking
	default:
		return AvatarIdle
	}
}

// Label 头像下方的状态文案
func (s AvatarState) Label() string {
	switch s {
	case AvatarListening:
		return "Mendengarkan..."
	case AvatarTalking:
		return "Berbicara..."
	default:
		return "Siap membantu"
	}
}
