package sqlconnect

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/5w1tchy/folio-api/internal/validate"
)

// ConnectDB opens the pgx-backed pool named by DATABASE_URL and pings it.
// Pool sizes come from DB_MAX_OPEN_CONNS / DB_MAX_IDLE_CONNS.
func ConnectDB(ctx context.Context) (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	maxOpen := validate.EnvInt("DB_MAX_OPEN_CONNS", 10)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(validate.EnvInt("DB_MAX_IDLE_CONNS", maxOpen), maxOpen))
	db.SetConnMaxIdleTime(validate.EnvDuration("DB_CONN_MAX_IDLE", "5m"))
	db.SetConnMaxLifetime(validate.EnvDuration("DB_CONN_MAX_LIFETIME", "30m"))
	return db, nil
}
