package refstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/facecheck/internal/face"
)

// referenceRow is one stored embedding.
type referenceRow struct {
	ID        uint                        `gorm:"primaryKey"`
	Identity  string                      `gorm:"index;not null"`
	Embedding datatypes.JSONSlice[float32] `gorm:"not null"`
	CreatedAt time.Time
}

func (referenceRow) TableName() string { return "face_references" }

// SQLite is the durable local Store kept next to the kiosk.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates the reference table.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create reference dir: %w", err)
		}
	}

	gormLogger := logger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open reference db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get reference sql.DB: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&referenceRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate reference db: %w", err)
	}

	slog.Info("reference store opened", "backend", "sqlite", "path", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Insert(ctx context.Context, identity string, embeddings []face.Embedding) error {
	if err := validate(identity, embeddings); err != nil {
		return err
	}
	rows := make([]referenceRow, len(embeddings))
	for i, e := range embeddings {
		rows[i] = referenceRow{Identity: identity, Embedding: datatypes.NewJSONSlice([]float32(e.Clone()))}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert references: %w", err)
	}
	return nil
}

func (s *SQLite) ByIdentity(ctx context.Context, identity string) ([]face.Embedding, error) {
	var rows []referenceRow
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	out := make([]face.Embedding, len(rows))
	for i, r := range rows {
		out[i] = face.Embedding(r.Embedding)
	}
	return out, nil
}

func (s *SQLite) All(ctx context.Context) ([]face.Reference, error) {
	var rows []referenceRow
	if err := s.db.WithContext(ctx).Order("identity, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}

	var refs []face.Reference
	for _, r := range rows {
		if n := len(refs); n == 0 || refs[n-1].Identity != r.Identity {
			refs = append(refs, face.Reference{Identity: r.Identity})
		}
		last := &refs[len(refs)-1]
		last.Embeddings = append(last.Embeddings, face.Embedding(r.Embedding))
	}
	return refs, nil
}

func (s *SQLite) DeleteByIdentity(ctx context.Context, identity string) error {
	err := s.db.WithContext(ctx).Where("identity = ?", identity).Delete(&referenceRow{}).Error
	if err != nil {
		return fmt.Errorf("delete references: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&referenceRow{}).Error
	if err != nil {
		return fmt.Errorf("clear references: %w", err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context, identity string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&referenceRow{}).Where("identity = ?", identity).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return int(n), nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
