// Package tlsutil 集中管理出站连接的 TLS 与 Transport 设置。
//
// 上游网关、中继客户端、语音 WebSocket 握手与 Redis 连接都从这里取配置：
// TLS 1.2 起步，只允许 AEAD 密码套件。
package tlsutil
