// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package relay 实现服务端流式聊天中继。

# 概述

客户端把完整对话（不含系统提示词）POST 到中继；中继在最前面插入
Naya 人设，以 stream=true 调用 OpenAI 兼容网关，并把上游 SSE 字节
原样、逐块回传给客户端。中继不解析正文，只用 streaming.Tap 旁路统计。

# 核心类型

  - Handler：http.Handler，处理 POST 与 OPTIONS 预检，所有响应带 CORS 头
  - Upstream：网关客户端，每次请求只发一次，无整体超时
  - Persona：可热替换的系统提示词，默认 DefaultPrompt

# 错误映射

  - 未配置密钥          → 500 {"error":"AI service is not configured"}，不调用上游
  - 上游 429            → 429 固定印尼语文案
  - 上游 402            → 402 固定印尼语文案
  - 其他非 2xx          → 500 {"error":"AI Gateway error: <status>"}
  - 网络错误等其他失败   → 500 {"error":"Terjadi kesalahan pada sistem"}
*/
package relay
