/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// driver pairs a database/sql driver name with its bun dialect and the DSN
// builder for a ConnectionConfig.
type driver struct {
	name    string
	dialect func() schema.Dialect
	dsn     func(cfg *ConnectionConfig) string
}

var drivers = map[string]driver{
	"mysql":      {name: "mysql", dialect: func() schema.Dialect { return mysqldialect.New() }, dsn: mysqlDSN},
	"postgres":   {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"postgresql": {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"sqlite":     {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: sqliteDSN},
	"sqlite3":    {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: sqliteDSN},
}

func driverFor(dbType string) (driver, error) {
	d, ok := drivers[dbType]
	if !ok {
		return driver{}, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return d, nil
}

// open creates the sql.DB and its bun wrapper without touching the network.
func (d driver) open(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open(d.name, d.dsn(cfg))
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, d.dialect()), nil
}

func mysqlDSN(cfg *ConnectionConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	// count matched rows, not changed ones, so a no-op UPDATE still reports 1
	mc.ClientFoundRows = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func sqliteDSN(cfg *ConnectionConfig) string {
	if cfg.IsInMemory() {
		return ":memory:"
	}
	return cfg.DBName + ".db"
}
