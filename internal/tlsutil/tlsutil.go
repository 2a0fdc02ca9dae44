package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites TLS 1.2 下允许的密码套件，TLS 1.3 的套件由 Go 固定
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 每次返回新的副本，调用方可以继续修改
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// TransportOptions 出站连接参数，零值使用默认
type TransportOptions struct {
	DialTimeout        time.Duration
	HeaderTimeout      time.Duration
	MaxIdleConns       int
	DisableCompression bool
}

// NewTransport 创建加固的 Transport
func NewTransport(o TransportOptions) *http.Transport {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 100
	}
	dialer := &net.Dialer{Timeout: o.DialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       DefaultTLSConfig(),
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          o.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: o.HeaderTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    o.DisableCompression,
	}
}

// StreamingHTTPClient 用于 SSE 长响应。
// 没有整体超时：流的寿命由请求 context 决定，只限制等待响应头的时间。
// 关闭压缩，否则网关会缓冲整段响应。
func StreamingHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{Transport: NewTransport(TransportOptions{
		HeaderTimeout:      headerTimeout,
		DisableCompression: true,
	})}
}

// DialHTTPClient 用于 WebSocket 握手，Timeout 只作用于握手
func DialHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(TransportOptions{DialTimeout: timeout, HeaderTimeout: timeout}),
	}
}
