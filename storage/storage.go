package storage

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultPoolSize is the number of connection slots a Pool holds when
// not configured otherwise.
const DefaultPoolSize = 128

// Config describes how to reach the MySQL server.
type Config struct {
	User     string
	Password string
	Host     string
	Port     uint16
	Database string

	// PoolSize is the number of connection slots. Zero means
	// DefaultPoolSize.
	PoolSize int

	// DialTimeout bounds the initial handshake of each lazily-opened
	// connection. Zero means the driver default.
	DialTimeout time.Duration
}

// DSN renders the driver connection string.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	if c.DialTimeout > 0 {
		mc.Timeout = c.DialTimeout
	}
	return mc.FormatDSN()
}

func (c Config) poolSize() int {
	if c.PoolSize <= 0 {
		return DefaultPoolSize
	}
	return c.PoolSize
}
