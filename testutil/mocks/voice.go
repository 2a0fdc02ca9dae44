package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/naya/types"
	"github.com/BaSui01/naya/voice"
)

// --- VoiceChannel ---

// VoiceChannel 可注入话语的语音通道
type VoiceChannel struct {
	mu         sync.Mutex
	out        chan voice.Utterance
	connectErr error
	connected  bool
	closed     bool
	closeCalls int
}

// NewVoiceChannel 创建语音通道模拟
func NewVoiceChannel() *VoiceChannel {
	return &VoiceChannel{}
}

// WithConnectError Connect 返回错误
func (c *VoiceChannel) WithConnectError(err error) *VoiceChannel {
	c.connectErr = err
	return c
}

// Connect 实现 voice.Channel
func (c *VoiceChannel) Connect(ctx context.Context) (<-chan voice.Utterance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	if c.connected {
		return nil, errors.New("already connected")
	}
	c.connected = true
	c.out = make(chan voice.Utterance, 16)
	return c.out, nil
}

// Say 注入一条话语，时间为 at（零值取当前时间）
func (c *VoiceChannel) Say(role types.Role, text string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil || c.closed {
		return
	}
	c.out <- voice.Utterance{Role: role, Text: text, At: at}
}

// Hangup 模拟远端断开
func (c *VoiceChannel) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil && !c.closed {
		c.closed = true
		close(c.out)
	}
}

// Close 实现 voice.Channel
func (c *VoiceChannel) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.Hangup()
	return nil
}

// CloseCalls 返回 Close 被调用的次数
func (c *VoiceChannel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// --- Speaker ---

// Speaker 记录朗读内容的音频能力
type Speaker struct {
	mu        sync.Mutex
	supported bool
	spoken    []string
	err       error
}

// NewSpeaker 创建音频能力模拟
func NewSpeaker(supported bool) *Speaker {
	return &Speaker{supported: supported}
}

// WithError Speak 返回错误
func (s *Speaker) WithError(err error) *Speaker {
	s.err = err
	return s
}

// Supported 实现 voice.Capability
func (s *Speaker) Supported() bool { return s.supported }

// Speak 实现 voice.Capability
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.err
}

// Spoken 返回朗读过的内容
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}
