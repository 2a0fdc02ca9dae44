package api

import (
	"time"

	"github.com/BaSui01/naya/types"
)

// =============================================================================
// 聊天中继类型
// =============================================================================

// ChatRequest 表示中继请求。
// @Description 聊天中继请求结构，对话按时间顺序排列
type ChatRequest struct {
	// 对话消息（角色与内容）
	Messages []types.ChatMessage `json:"messages"`
}

// ChatErrorResponse 中继在流开始前失败时返回的正文。
// @Description 中继错误响应
type ChatErrorResponse struct {
	// 面向用户的错误文案
	Error string `json:"error" example:"Terlalu banyak permintaan. Mohon tunggu sebentar."`
}

// =============================================================================
// 聊天历史类型
// =============================================================================

// HistoryMessage 一条持久化的聊天消息。
// @Description 聊天历史条目
type HistoryMessage struct {
	// 自增 ID
	ID int64 `json:"id" example:"42"`
	// 角色：user 或 assistant
	Role types.Role `json:"role" example:"user"`
	// 消息内容
	Content string `json:"content" example:"Apa saja wisata di Sidoarjo?"`
	// token 数
	TokenCount int `json:"token_count" example:"9"`
	// 创建时间（UTC，毫秒精度）
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse 历史查询结果，按时间升序。
// @Description 聊天历史列表
type HistoryResponse struct {
	// 存储后端名称
	Backend string `json:"backend" example:"sql"`
	// 消息列表
	Messages []HistoryMessage `json:"messages"`
}

// SaveHistoryRequest 追加一条历史。
// @Description 保存聊天消息请求
type SaveHistoryRequest struct {
	// 角色：user 或 assistant
	Role types.Role `json:"role" example:"assistant"`
	// 消息内容
	Content string `json:"content" example:"Halo! Saya Naya."`
	// 可选的创建时间，缺省为服务器时间
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Validate 校验请求
func (r SaveHistoryRequest) Validate() error {
	if r.Role != types.RoleUser && r.Role != types.RoleAssistant {
		return types.NewError(types.ErrInvalidRequest, "role must be user or assistant")
	}
	if len(r.Content) == 0 {
		return types.NewError(types.ErrInvalidRequest, "content is required")
	}
	return nil
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse 表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"role must be user or assistant"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
}
