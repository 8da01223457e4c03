package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/quotient-app/quotient/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the database and applies the schema via AutoMigrate. The DSN
// selects the driver: sqlite for file:/:memory: style DSNs, postgres
// otherwise. Retries briefly so the app survives a database that is still
// starting up.
func Connect(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	dsn = NormalizeDSN(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	cfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
	var conn *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		if isSQLite(dsn) {
			conn, err = gorm.Open(sqlite.Open(dsn), cfg)
		} else {
			conn, err = gorm.Open(postgres.Open(dsn), cfg)
		}
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("database not ready, retrying")
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return conn, nil
}

func isSQLite(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "file:") || strings.HasPrefix(lower, ":memory:") || strings.HasSuffix(lower, ".db")
}
