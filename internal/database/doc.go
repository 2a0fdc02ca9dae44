// 版权所有 2024 Naya Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 SQL 聊天历史后端打开 GORM 连接并维护连接池。

Open 按 config.DatabaseConfig.Driver 选方言：postgres、mysql、纯 Go 的
sqlite 或 cgo 的 sqlite3。得到的 *gorm.DB 交给 PoolManager，由它设置连接上限与生命周期，
并在后台按间隔 Ping。

	pm, err := database.Open(cfg.Database, logger,
		database.WithStatsReporter(func(st database.PoolStats) {
			collector.RecordDBConnections(cfg.Database.Driver, st.OpenConnections, st.Idle)
		}))

每次探活后的 PoolStats 会交给 WithStatsReporter 注册的回调，serve 用它
更新 Prometheus 连接数指标。Close 停止探活并关闭底层 sql.DB。
*/
package database
