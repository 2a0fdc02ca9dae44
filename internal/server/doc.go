// 版权所有 2024 Naya Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理中继服务与指标服务的 HTTP 生命周期。

# 概述

Manager 封装 net/http.Server，统一处理监听、后台服务、错误传播与
优雅关闭。中继端点返回长时间的 SSE 流，因此默认不设置写超时；
关闭时会等待已打开的流在 ShutdownTimeout 内结束。

# 核心类型

  - Manager：Start 非阻塞启动；Run 阻塞到 ctx 取消后优雅关闭，
    适合放进 errgroup；Shutdown 幂等。
  - Config：监听地址、超时、请求头上限与可选的 TLS 证书。
    ConfigFrom / MetricsConfigFrom 从 config.ServerConfig 生成。
*/
package server
