// Package archive keeps a durable, append-only record of settled jobs
// for operator bookkeeping. Session state itself stays in the volatile
// store; this trail only ever receives best-effort writes after a job
// settles and never influences the state machine.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// SettledJob is one archived job outcome.
type SettledJob struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"index;not null"`
	Outcome    string `gorm:"type:text;check:outcome IN ('done', 'failed');not null"`
	Validation string `gorm:"type:text"`
	ErrKind    string `gorm:"type:text"`
	Refunded   bool
	SavingsEUR float64
	Findings   int
	SettledAt  time.Time `gorm:"index;not null"`
}

func (SettledJob) TableName() string { return "settled_jobs" }

// Archive wraps the sqlite-backed trail.
type Archive struct {
	db *gorm.DB
}

// Open creates or opens the archive database at path and runs migrations.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=ON"), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap archive database: %w", err)
	}
	// A single writer is plenty for an append-only trail.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run archive migrations: %w", err)
	}

	return &Archive{db: db}, nil
}

func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_settled_jobs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SettledJob{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("settled_jobs")
			},
		},
	})
	return m.Migrate()
}

// Record appends one settled job to the trail.
func (a *Archive) Record(ctx context.Context, sessionID string, rec *models.CompletedRecord) error {
	job := &SettledJob{
		SessionID: sessionID,
		Outcome:   "done",
		Refunded:  rec.Refunded,
		SettledAt: rec.CompletedAt,
	}
	if rec.Failed() {
		job.Outcome = "failed"
		job.ErrKind = string(rec.ErrKind)
	} else {
		job.Validation = string(rec.Result.Validation)
		job.SavingsEUR = rec.Result.TotalSavingsEUR
		job.Findings = len(rec.Result.Findings)
	}
	return a.db.WithContext(ctx).Create(job).Error
}

// RecentCount reports the number of jobs settled since the cutoff.
func (a *Archive) RecentCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&SettledJob{}).Where("settled_at >= ?", since).Count(&count).Error
	return count, err
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
