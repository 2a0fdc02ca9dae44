// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package pool 提供固定 worker 数量的后台任务队列。

# 概述

Pool 把任务放进有界队列，由最多 Workers 个 goroutine 依次执行。
Workers 为 1 时任务严格按提交顺序执行，会话用它串行朗读助手回复。

# 核心接口

  - Submit：非阻塞提交，队列满返回 ErrPoolFull，关闭后返回 ErrPoolClosed
  - Close：停止接收新任务，等待已排队的任务执行完
  - Stats：提交、完成、失败、拒绝计数
*/
package pool
