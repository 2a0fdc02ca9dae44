// Copyright 2026 Naya Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 Naya 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
SSE 报文构造、假网关与异步断言等测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual /
    AssertEventuallyTrue / WaitForChannel
  - SSE 构造: DeltaLine / SSEBody / ChunkReader，
    按任意边界切分同一份流式正文
  - 假网关: Gateway 基于 httptest，记录请求并按脚本逐块回写

# 子包

  - testutil/mocks: Relay（脚本化中继）、VoiceChannel（可注入话语的
    语音通道）、Speaker（记录朗读内容的音频能力）
  - testutil/fixtures: 预置的 Naya 对话与 SSE 样例

# 使用示例

	gw := testutil.NewGateway(t, testutil.SSEBody("Hal", "o!"))
	relay := mocks.NewRelay().WithBody(testutil.SSEBody("Halo!"))
*/
package testutil
