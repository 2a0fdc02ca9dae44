// 版权所有 2024 Naya Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理聊天历史表 chat_history 的 Schema 迁移，支持
PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌进二进制，`naya migrate`
子命令与服务启动前的准备脚本都走同一套迁移。SQL 历史后端
（history.SQLStore）依赖这里建好的表；表结构与 GORM 模型保持一致，
开启 AutoMigrate 时不会产生额外变更。

SQLite 使用纯 Go 驱动打开，与 GORM 侧共用同一个驱动实现，无需 CGO。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的实现，日志接入 zap，
    ctx 取消时在迁移步骤之间优雅停止。
  - CLI：面向终端的格式化输出。
  - NewMigratorFromConfig / NewMigratorFromURL：从应用配置或连接串创建。
*/
package migration
