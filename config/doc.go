// Copyright (c) Naya Authors.
// Licensed under the MIT License.

// Package config 提供 Naya 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → NAYA_ 前缀环境变量 的顺序加载，
// 网关密钥也可以来自 LOVABLE_API_KEY。FileWatcher 以轮询方式
// 监听人设文件，变更后回调用于热替换系统提示词。
package config
