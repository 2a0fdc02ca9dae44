// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Naya 中继服务除聊天中继之外的 HTTP 处理器。

# 概述

聊天中继本身（POST /api/v1/chat）由 relay 包实现并直接回传 SSE；
本包负责 JSON 风格的辅助端点，所有处理器均遵循标准 net/http 接口。

# 核心类型

  - HistoryHandler：GET/POST/DELETE /api/v1/history，历史未启用时返回 503
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - CheckFunc：函数式健康检查（历史存储、Redis、网关配置）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射：HTTPStatusFor
*/
package handlers
