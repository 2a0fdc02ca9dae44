// Package telemetry 封装 OpenTelemetry SDK 初始化，为 naya 的中继服务提供
// 集中式的 TracerProvider 与 MeterProvider 配置，并提供基于 OTel metric
// API 的中继仪表。遥测关闭时使用 noop 实现，不连接任何外部服务。
package telemetry
