package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "memstream")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.ConversationMeta{},
		&types.ConversationStatus{},
		&types.MemCell{},
		&types.EpisodicMemory{},
		&types.SemanticMemory{},
		&types.EventLog{},
		&types.ProfileMemory{},
		&types.Foresight{},
		&types.ClusterStateRow{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// Full-text search runs on expression indexes over search_text so the
	// BM25 arm needs no extra column maintenance beyond what the save path
	// already writes.
	s.log.Info("Configuring full-text search indexes...")
	for _, table := range []string{"episodic_memory", "semantic_memory", "event_log", "foresight"} {
		stmt := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_fts ON %q USING GIN (to_tsvector('english', coalesce(search_text, '')));`,
			table, table,
		)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create fts index on %s: %w", table, err)
		}
	}

	// One latest profile per (user, group). Partial unique index enforces the
	// invariant at the store even if a save path misbehaves.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_latest_unique
		ON "profile_memory" ("user_id", "group_id")
		WHERE "is_latest" = true
	`).Error; err != nil {
		return fmt.Errorf("failed to create profile latest index: %w", err)
	}

	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
