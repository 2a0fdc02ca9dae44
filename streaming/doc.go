// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package streaming 实现 SSE 增量流的客户端解析与重组。

# 概述

上游以 text/event-stream 逐块返回 OpenAI 兼容的 chat.completion.chunk。
网络分块边界与行边界、JSON 边界都不对齐，本包负责在任意分块方式下
得到同样的最终文本。

# 核心类型

  - Decoder：行切分 + 过滤（注释、空行、非 data 行、[DONE]）
  - Delta：标签化提取结果：Complete / None / Incomplete / Malformed
  - Reassembler：把片段按顺序拼接到活动目标消息，处理结束、失败与取消
  - Sink：消息状态接收方（由 session.Conversation 实现）
  - Tap：旁路观察字节流，用于中继端统计

# 主要能力

  - 分块边界无关：任意切分同一 SSE 正文，最终内容一致
  - [DONE] 之后的字节一律忽略
  - 不完整 JSON 放回缓冲区，等待下一个分块
  - 传输结束时重扫残余缓冲区（最后一行可无换行）
  - 出错时回滚空占位消息并追加固定致歉消息
*/
package streaming
