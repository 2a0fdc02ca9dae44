// Package api 描述 Naya 中继服务的 HTTP API。
//
// # API Overview
//
// 服务提供：
//   - POST /api/v1/chat：把对话转发给 LLM 网关并原样回传 SSE 流
//   - GET/POST/DELETE /api/v1/history：聊天历史的查询、追加与清空
//   - /health、/healthz、/ready、/version：健康检查与版本
//   - /metrics（独立端口）：Prometheus 指标
//
// # Authentication
//
// 中继端点接受可公开的客户端密钥：
//
//	Authorization: Bearer <publishable-key>
//
// 配置了 server.jwt_secret 时，/api/v1/ 下的端点要求有效的 HS256 JWT。
//
// # Base URL
//
//	http://localhost:8080
//
// 本包只包含请求/响应类型，处理器位于 api/handlers。
package api
