package database

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName 注册了 Unicode 函数的 sqlite 驱动名
const SQLiteDriverName = "sqlite3_roster"

// 内置 LOWER / LIKE 只折叠 ASCII 字母，姓名检索改用 ulower
func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}
