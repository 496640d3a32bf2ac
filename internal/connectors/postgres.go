// Package connectors wraps the persistence and cache backends behind small
// interfaces, grounded on connectors.PostgresConnector / RedisConnector as
// threaded through every constructor in the teacher repo.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// PostgresConnector exposes the gorm handle scoped to a context, the way
// every store in this service expects to receive it.
type PostgresConnector interface {
	DB(ctx context.Context) *gorm.DB
	AutoMigrate(models ...interface{}) error
	Ping() error
}

type postgresConnector struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewPostgresConnector opens a gorm connection against Postgres. When
// cfg.DBName is ":memory:", "file::memory:?cache=shared" or ends in ".db"
// a sqlite driver is used
// instead, which is how store-layer tests exercise real SQL without a
// Postgres instance.
func NewPostgresConnector(cfg config.PostgresConfig, logger commons.Logger) (PostgresConnector, error) {
	var db *gorm.DB
	var err error

	if isSqliteDSN(cfg.DBName) {
		db, err = gorm.Open(sqlite.Open(cfg.DBName), &gorm.Config{})
	} else {
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.DBName, cfg.User, cfg.Password, cfg.SSLMode)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if cfg.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Infof("connected to database %s", cfg.DBName)
	return &postgresConnector{db: db, logger: logger}, nil
}

func isSqliteDSN(name string) bool {
	return name == ":memory:" || name == "file::memory:?cache=shared" || len(name) > 3 && name[len(name)-3:] == ".db"
}

func (p *postgresConnector) DB(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx)
}

func (p *postgresConnector) AutoMigrate(models ...interface{}) error {
	return p.db.AutoMigrate(models...)
}

func (p *postgresConnector) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
