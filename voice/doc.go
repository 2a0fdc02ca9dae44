// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package voice 定义语音会话的边界：语音代理通道、本地音频能力与头像状态。

# 概述

语音路径与文本流水线并行：语音代理通过 WebSocket 推送用户转写和代理回复，
本包把它们转换为 Utterance，由 session 追加到同一个会话中（带重复抑制）。
音频采集与合成只以 Capability 接口出现，不支持时静默降级。

# 核心类型

  - Utterance：一条语音转写或回复（角色、文本、到达时间）
  - Channel：语音通道接口
  - WebSocketChannel：基于 coder/websocket 的语音代理客户端
  - Capability：语音合成能力，NoopCapability 为无音频实现
  - AvatarState：idle / listening / talking

# 协议

  - user_transcript                  → 用户 Utterance
  - agent_response                   → 助手 Utterance
  - ping                             → 回复 {"type":"pong","event_id":N}
  - conversation_initiation_metadata → 记录 conversation_id
  - 其他事件忽略
*/
package voice
