package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/naya/internal/pool"
	"github.com/BaSui01/naya/streaming"
	"github.com/BaSui01/naya/types"
	"github.com/BaSui01/naya/voice"
	"go.uber.org/zap"
)

// =============================================================================
// 🧭 会话
// =============================================================================

// 回合结果，用于日志与指标
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeBusy      = "busy"
	OutcomeCanceled  = "canceled"
	OutcomeRelay     = "relay_error"
	OutcomeStream    = "stream_error"
	OutcomeRateLimit = "rate_limited"
	OutcomePayment   = "payment_required"
)

// speechQueueSize 等待朗读的回复上限
const speechQueueSize = 4

// ErrVoiceAttached 已经连接了语音通道
var ErrVoiceAttached = errors.New("session: voice channel already attached")

// History 尽力而为的持久化，由 history.Recorder 实现
type History interface {
	Save(ctx context.Context, role types.Role, content string)
	Load(ctx context.Context) []types.Message
	Clear(ctx context.Context)
}

// Metrics 会话指标，由 metrics.Collector 实现
type Metrics interface {
	RecordTurn(outcome string)
	RecordVoiceDuplicate()
}

// Config 会话配置
type Config struct {
	// Apology 回合失败时追加的文案，为空用默认
	Apology string
	// DedupWindow 语音重复抑制窗口，0 关闭抑制
	DedupWindow time.Duration
	// SpeechEnabled 是否朗读助手回复
	SpeechEnabled bool
	// ReadSize 单次读取响应体的字节数
	ReadSize int
}

// DefaultConfig 返回默认会话配置
func DefaultConfig() Config {
	return Config{DedupWindow: DefaultDedupWindow, SpeechEnabled: true}
}

// Option 配置 Session
type Option func(*Session)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistory 设置持久化
func WithHistory(h History) Option {
	return func(s *Session) { s.history = h }
}

// WithSpeech 设置本地音频能力
func WithSpeech(c voice.Capability) Option {
	return func(s *Session) {
		if c != nil {
			s.speech = c
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithConversation 使用已有对话（例如预先订阅了观察者的对话）
func WithConversation(c *Conversation) Option {
	return func(s *Session) {
		if c != nil {
			s.conv = c
		}
	}
}

// Session 持有一段对话及其忙碌状态，由调用方创建并显式传递
type Session struct {
	cfg     Config
	relay   Relay
	conv    *Conversation
	history History
	speech  voice.Capability
	metrics Metrics
	logger  *zap.Logger

	busy          atomic.Bool
	listening     atomic.Bool
	closed        atomic.Bool
	speechEnabled atomic.Bool

	voiceMu     sync.Mutex
	voiceCh     voice.Channel
	voiceCancel context.CancelFunc
	voiceDone   chan struct{}

	// 朗读队列，单 worker 保证按回复顺序朗读
	speechQueue *pool.Pool
}

// NewSession 创建会话
func NewSession(cfg Config, client Relay, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		relay:  client,
		speech: voice.NoopCapability{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.conv == nil {
		s.conv = NewConversation(WithDedupWindow(cfg.DedupWindow))
	}
	s.logger = s.logger.With(zap.String("component", "session"))
	s.speechEnabled.Store(cfg.SpeechEnabled)
	s.speechQueue = pool.New(pool.Config{
		Name:        "speech",
		Workers:     1,
		QueueSize:   speechQueueSize,
		TaskTimeout: 2 * time.Minute,
		Logger:      s.logger,
	})
	return s
}

// Conversation 返回会话持有的对话
func (s *Session) Conversation() *Conversation { return s.conv }

// Busy 是否有回合正在进行
func (s *Session) Busy() bool { return s.busy.Load() }

// Listening 语音通道是否在线
func (s *Session) Listening() bool { return s.listening.Load() }

// AvatarState 由监听与忙碌状态派生的头像状态
func (s *Session) AvatarState() voice.AvatarState {
	return voice.DeriveAvatar(s.Listening(), s.Busy())
}

// SetSpeechEnabled 打开或关闭朗读
func (s *Session) SetSpeechEnabled(enabled bool) { s.speechEnabled.Store(enabled) }

// SpeechEnabled 朗读是否打开
func (s *Session) SpeechEnabled() bool { return s.speechEnabled.Load() }

// Send 发送一条用户消息并驱动流式回合，返回助手的完整回复。
//
// 用户消息在任何网络调用之前同步追加；忙碌标志在所有退出路径上清除。
// 失败时对话中可见的是致歉消息，错误同时返回给调用方。
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if s.closed.Load() {
		return "", types.NewError(types.ErrSessionClosed, "session is closed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.NewError(types.ErrInvalidRequest, "message is empty")
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.recordTurn(OutcomeBusy)
		return "", types.NewError(types.ErrSessionBusy, "a message is already being sent")
	}
	defer s.busy.Store(false)

	user := s.conv.AppendUser(text)
	s.save(ctx, user.Role, user.Content)

	wire := types.WireMessages(s.conv.Messages())
	r := streaming.NewReassembler(s.conv, streaming.WithApology(s.cfg.Apology))

	body, err := s.relay.Stream(ctx, wire)
	if err != nil {
		if isCanceled(err) {
			r.Cancel()
			s.recordTurn(OutcomeCanceled)
			return "", err
		}
		r.Fail()
		outcome := relayOutcome(err)
		s.logger.Error("chat turn failed before streaming",
			zap.String("outcome", outcome),
			zap.Error(err))
		s.recordTurn(outcome)
		return "", err
	}
	defer body.Close()

	content, err := streaming.Consume(ctx, body, r,
		streaming.WithLogger(s.logger),
		streaming.WithReadSize(s.cfg.ReadSize))
	if err != nil {
		if isCanceled(err) {
			s.recordTurn(OutcomeCanceled)
			return "", err
		}
		s.logger.Error("chat stream aborted",
			zap.Int("partial_len", len(r.Content())),
			zap.Error(err))
		s.recordTurn(OutcomeStream)
		return "", err
	}

	if content == "" {
		// 没有任何片段：移除空占位
		s.conv.Drop(r.TargetID())
		s.recordTurn(OutcomeEmpty)
		return "", nil
	}

	s.save(ctx, types.RoleAssistant, content)
	s.speak(content)
	s.recordTurn(OutcomeOK)
	return content, nil
}

func relayOutcome(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrRateLimited:
		return OutcomeRateLimit
	case types.ErrQuotaExceeded:
		return OutcomePayment
	default:
		return OutcomeRelay
	}
}

func (s *Session) recordTurn(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTurn(outcome)
	}
}

func (s *Session) save(ctx context.Context, role types.Role, content string) {
	if s.history != nil {
		s.history.Save(ctx, role, content)
	}
}

// speak 排队朗读，不阻塞回合；能力不可用时静默跳过，队列满时丢弃
func (s *Session) speak(text string) {
	if !s.SpeechEnabled() || !s.speech.Supported() {
		return
	}
	err := s.speechQueue.Submit(func(ctx context.Context) error {
		if err := s.speech.Speak(ctx, text); err != nil {
			return fmt.Errorf("speech synthesis failed: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("speech skipped", zap.Int("content_len", len(text)), zap.Error(err))
	}
}

// =============================================================================
// 🎙️ 语音通道
// =============================================================================

// AttachVoice 连接语音通道并订阅其话语，直到 DetachVoice、Close 或远端断开
func (s *Session) AttachVoice(ctx context.Context, ch voice.Channel) error {
	if s.closed.Load() {
		return types.NewError(types.ErrSessionClosed, "session is closed")
	}

	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	if s.voiceCh != nil {
		return ErrVoiceAttached
	}

	vctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	utterances, err := ch.Connect(vctx)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	s.voiceCh = ch
	s.voiceCancel = cancel
	s.voiceDone = done
	s.listening.Store(true)
	s.logger.Info("voice channel attached")

	go func() {
		defer close(done)
		for u := range utterances {
			s.ingest(vctx, u)
		}
		s.listening.Store(false)

		// 远端断开时释放占用，允许重新连接
		s.voiceMu.Lock()
		if s.voiceDone == done {
			s.voiceCh, s.voiceCancel, s.voiceDone = nil, nil, nil
			cancel()
		}
		s.voiceMu.Unlock()
		s.logger.Info("voice channel ended")
	}()
	return nil
}

// ingest 追加一条语音消息，重复的被丢弃
func (s *Session) ingest(ctx context.Context, u voice.Utterance) {
	msg, ok := s.conv.AppendVoice(u.Role, u.Text, u.At)
	if !ok {
		if strings.TrimSpace(u.Text) != "" && s.metrics != nil {
			s.metrics.RecordVoiceDuplicate()
		}
		s.logger.Debug("voice message suppressed", zap.String("role", string(u.Role)))
		return
	}
	s.save(ctx, msg.Role, msg.Content)
}

// DetachVoice 关闭语音通道并等待订阅结束。未连接时为空操作。
func (s *Session) DetachVoice() {
	s.voiceMu.Lock()
	ch, cancel, done := s.voiceCh, s.voiceCancel, s.voiceDone
	s.voiceCh, s.voiceCancel, s.voiceDone = nil, nil, nil
	s.voiceMu.Unlock()

	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		s.logger.Warn("voice channel close failed", zap.Error(err))
	}
	cancel()
	<-done
	s.listening.Store(false)
}

// =============================================================================
// ♻️ 生命周期
// =============================================================================

// Restore 对话为空时从持久化载入历史，返回载入条数
func (s *Session) Restore(ctx context.Context) int {
	if s.history == nil {
		return 0
	}
	n := s.conv.Restore(s.history.Load(ctx))
	if n > 0 {
		s.logger.Info("chat history restored", zap.Int("messages", n))
	}
	return n
}

// Reset 停止语音、清空对话并清空持久化历史
func (s *Session) Reset(ctx context.Context) {
	s.DetachVoice()
	s.conv.Clear()
	if s.history != nil {
		s.history.Clear(ctx)
	}
	s.logger.Info("session reset")
}

// Close 关闭会话：断开语音并等待朗读结束。之后 Send 返回 SESSION_CLOSED。
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.DetachVoice()
	s.speechQueue.Close()
	return nil
}
