// Copyright (c) Naya Authors.
// Licensed under the MIT License.

/*
Package session 实现客户端的对话会话。

Session 由调用方创建并持有，不存在进程级单例。一次 Send：

 1. 同步追加用户消息（在任何网络调用之前）并置忙碌；
 2. 通过 Relay 打开一次中继调用；
 3. 用 streaming.Consume 驱动 解码 → 提取 → 重组，片段按顺序追加到
    Conversation 中的活动目标；
 4. 成功时冻结目标并持久化，失败时回滚空占位并追加致歉消息；
 5. 所有退出路径上清除忙碌。

同一会话同时只允许一个 Send，其余返回 SESSION_BUSY。

语音通道通过 AttachVoice 订阅，话语直接追加到对话；与窗口内（默认
3000ms）同角色同内容的消息重复时被抑制。Reset 断开语音、清空对话并
清空持久化历史。
*/
package session
