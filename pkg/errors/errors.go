package errors

import (
	"database/sql/driver"
	"errors"
	"net"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable 存储后端不可达或配置错误
var ErrStoreUnavailable = errors.New("存储服务不可用")

// IsUnavailable 判断底层驱动错误是否属于连接类故障
// 覆盖 pgx / lib/pq / sqlite3 / mysql 以及网络层错误
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isUnavailablePGCode(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isUnavailablePGCode(string(pqErr.Code))
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrIoErr:
			return true
		}
		return false
	}

	if errors.Is(err, mysqldrv.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// 08xxx 连接异常，57P0x 服务端关闭，3D000 数据库不存在，28xxx 认证失败
func isUnavailablePGCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "28":
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03", "3D000":
		return true
	}
	return false
}
