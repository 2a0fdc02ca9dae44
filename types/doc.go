// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package types 提供 naya 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 streaming、relay、
session、history 等上层模块提供统一的类型契约。

# 核心类型

  - Role：对话角色（system / user / assistant）
  - ChatMessage：线上传输格式，仅含 role + content
  - Message：会话消息（ID、Role、Content、Timestamp）
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - 消息构造：NewMessage / NewUserMessage / NewAssistantMessage
  - 线上转换：Message.Wire / WireMessages
  - 错误工具链：AsError / IsRetryable / GetErrorCode / IsErrorCode
*/
package types
