package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type BenchmarkRun struct {
	ID          string            `gorm:"type:text;primaryKey"`
	Title       string            `gorm:"type:text;not null;default:''"`
	Provider    string            `gorm:"type:text;not null;default:'';index"`
	Status      string            `gorm:"type:text;not null"`
	FailedStage string            `gorm:"type:text"`
	StartedAt   time.Time         `gorm:"type:timestamptz;not null;index"`
	FinishedAt  time.Time         `gorm:"type:timestamptz;not null"`
	TotalMS     int64             `gorm:"type:bigint;not null"`
	Outputs     datatypes.JSONMap `gorm:"type:jsonb"`
	Report      string            `gorm:"type:text"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type BenchmarkStage struct {
	ID         int64        `gorm:"type:bigserial;primaryKey"`
	RunID      string       `gorm:"type:text;not null;uniqueIndex:idx_stage_run_position"`
	Position   int          `gorm:"type:integer;not null;uniqueIndex:idx_stage_run_position"`
	Name       string       `gorm:"type:text;not null"`
	Action     string       `gorm:"type:text;not null"`
	Status     string       `gorm:"type:text;not null"`
	StartedAt  *time.Time   `gorm:"type:timestamptz"`
	FinishedAt *time.Time   `gorm:"type:timestamptz"`
	DurationMS *int64       `gorm:"type:bigint"`
	Error      string       `gorm:"type:text"`
	Run        BenchmarkRun `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(&BenchmarkRun{}, &BenchmarkStage{}); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if !m.HasConstraint(&BenchmarkStage{}, "Run") {
		if err := m.CreateConstraint(&BenchmarkStage{}, "Run"); err != nil {
			return err
		}
	}
	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}
	return gormDB.WithContext(ctx).Migrator().DropTable(&BenchmarkStage{}, &BenchmarkRun{})
}
