// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、中继流、会话、历史存储与数据库连接池。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，按 label 分组。

# 核心类型

  - Collector：指标收集器，按业务域分组持有 Counter、Histogram、Gauge。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 中继指标：按结果与上游状态码计数、上游响应头等待时间、
    转发字节数、文本片段数、是否见到 [DONE]。
  - 会话指标：回合结果计数、被抑制的重复语音消息数。
  - 历史存储指标：按 backend/operation/status 计数与耗时。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
