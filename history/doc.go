// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package history 提供只追加的聊天历史存储。

# 后端

  - MemoryStore：进程内，用于本地运行与测试。
  - SQLStore：基于 GORM，支持 postgres、mysql 与 sqlite，表名 chat_history。
  - RedisStore：JSON 记录追加到 Redis 列表，ID 由 INCR 分配。
  - MongoStore：文档集合加计数器集合。

NewStore 根据 history.backend 选择后端；Instrument 为存储操作
记录 Prometheus 指标；Recorder 把失败降级为日志，供会话以尽力而为
的方式保存、恢复与清空历史。

History 始终返回最近的若干条记录，按时间升序排列，最新的在最后。
token_count 由 TokenCounter（tiktoken cl100k_base）计算，词表不可用时
退化为按字符估算。
*/
package history
