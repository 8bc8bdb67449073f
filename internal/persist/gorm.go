package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sink drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverCSV      = "csv"
)

// GormSink stores records in the sensor_data table.
type GormSink struct {
	db *gorm.DB
}

// OpenDB connects to a postgres or sqlite database.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// OpenGorm connects to a postgres or sqlite database and migrates the
// sensor_data table.
func OpenGorm(driver, dsn string) (*GormSink, error) {
	db, err := OpenDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewGormSink(db)
}

// NewGormSink wraps an open database and migrates the sensor_data table.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate sensor_data: %w", err)
	}
	if db.Dialector.Name() == DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql.DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return &GormSink{db: db}, nil
}

// DB returns the underlying database, shared with the user store.
func (s *GormSink) DB() *gorm.DB { return s.db }

// insertBatchSize keeps each INSERT under the bound-parameter limits of
// sqlite (32766) and postgres (65535) at nine columns per row.
const insertBatchSize = 500

// InsertMany writes records in one transaction, split into batched INSERTs.
// Either every record is stored or none is.
func (s *GormSink) InsertMany(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&records, insertBatchSize).Error
	})
}

// Count returns the number of stored rows.
func (s *GormSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}

// Close releases the database connection.
func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
