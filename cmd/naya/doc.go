// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package main 提供 Naya 的命令行入口。

# 概述

cmd/naya 同时是流式聊天中继服务和终端聊天客户端。serve 启动中继、
历史接口、健康检查与独立的 Prometheus 指标端口；chat 通过中继与
Naya 对话，可选连接语音代理；history 与 migrate 管理聊天历史存储。

# 核心类型

  - Server：组装中继、历史、健康检查，用 errgroup 运行中继与指标两个端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - chatApp：终端会话：Session、历史记录器、可选语音通道
  - transcript：把对话事件渲染成终端文本，流式片段逐个输出

# 主要能力

  - 子命令：serve、chat、history、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、RequestLogger、
    MetricsMiddleware、SecurityHeaders；/api/ 下可选 BearerJWT，
    中继端点按 IP 限流，历史接口带 CORS
  - 人设热替换：FileWatcher 监听人设文件，变更后替换系统提示词
  - 优雅关闭：signal.NotifyContext 取消后两个端口依次关闭，
    进行中的流式响应在 shutdown_timeout 内完成
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
