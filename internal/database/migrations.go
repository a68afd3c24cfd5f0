package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migration represents a database migration
type Migration struct {
	// Version is the migration version (e.g., 1, 2, 3, ...)
	Version int

	// Name is a descriptive name for the migration
	Name string

	// Up performs the migration
	Up func(tx *gorm.DB) error

	// Down rolls back the migration
	Down func(tx *gorm.DB) error
}

// MigrationRecord represents a record of a migration in the database
type MigrationRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Version   int    `gorm:"uniqueIndex"`
	Name      string `gorm:"size:255"`
	AppliedAt time.Time
}

// MigrationStatus reports whether a registered migration has been applied
type MigrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// MigrateOptions provides options for migration operations
type MigrateOptions struct {
	// DryRun only logs the migrations that would run
	DryRun bool

	// Force allows rolling back applied migrations
	Force bool

	// Logger receives progress messages; nil silences them
	Logger logrus.FieldLogger
}

// Migrator manages database migrations
type Migrator struct {
	db         *gorm.DB
	migrations []*Migration
	options    MigrateOptions
}

// NewMigrator creates a new migrator
func NewMigrator(db *gorm.DB, options MigrateOptions) *Migrator {
	return &Migrator{db: db, options: options}
}

// AddMigrations adds migrations to the migrator
func (m *Migrator) AddMigrations(migrations ...*Migration) {
	m.migrations = append(m.migrations, migrations...)
}

// RegisterAllMigrations registers the application schema history
func (m *Migrator) RegisterAllMigrations() {
	m.AddMigrations(
		&Migration{
			Version: 1,
			Name:    "create_scans_and_findings",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Scan{}, &models.Finding{})
			},
			Down: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.Finding{}, &models.Scan{})
			},
		},
		&Migration{
			Version: 2,
			Name:    "create_recurrence_policies",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.RecurrencePolicy{})
			},
			Down: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.RecurrencePolicy{})
			},
		},
		&Migration{
			Version: 3,
			Name:    "index_scans_by_owner_and_created",
			Up: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_scans_owner_created ON scans (owner_id, created_at)").Error
			},
			Down: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_scans_owner_created").Error
			},
		},
	)
}

// MigrateUp applies every pending migration, each in its own transaction
func (m *Migrator) MigrateUp() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migration records table: %w", err)
	}

	currentVersion, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}

	m.sortMigrations(false)
	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m.log("Migrating to version %d: %s", migration.Version, migration.Name)
		if m.options.DryRun {
			continue
		}

		migration := migration
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration up error (version %d): %w", migration.Version, err)
			}
			record := MigrationRecord{Version: migration.Version, Name: migration.Name, AppliedAt: time.Now()}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to record migration (version %d): %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	latestVersion, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}
	m.log("Database is at version %d", latestVersion)
	return nil
}

// MigrateDown rolls back applied migrations above targetVersion. Requires Force.
func (m *Migrator) MigrateDown(targetVersion int) error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migration records table: %w", err)
	}

	currentVersion, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}
	if !m.options.Force && targetVersion < currentVersion {
		return fmt.Errorf("potentially destructive operation, use force option to proceed")
	}

	m.sortMigrations(true)
	for _, migration := range m.migrations {
		if migration.Version <= targetVersion || migration.Version > currentVersion {
			continue
		}

		m.log("Rolling back version %d: %s", migration.Version, migration.Name)
		if m.options.DryRun {
			continue
		}

		migration := migration
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Down(tx); err != nil {
				return fmt.Errorf("migration down error (version %d): %w", migration.Version, err)
			}
			if err := tx.Where("version = ?", migration.Version).Delete(&MigrationRecord{}).Error; err != nil {
				return fmt.Errorf("failed to remove migration record (version %d): %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	latestVersion, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}
	m.log("Database is at version %d", latestVersion)
	return nil
}

// GetCurrentVersion returns the highest applied migration version, or 0
func (m *Migrator) GetCurrentVersion() (int, error) {
	if !m.db.Migrator().HasTable(&MigrationRecord{}) {
		return 0, nil
	}

	var record MigrationRecord
	err := m.db.Order("version desc").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return record.Version, nil
}

// Status lists every registered migration and whether it has been applied
func (m *Migrator) Status() ([]MigrationStatus, error) {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to create migration records table: %w", err)
	}

	var records []MigrationRecord
	if err := m.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get migration records: %w", err)
	}
	applied := make(map[int]time.Time, len(records))
	for _, r := range records {
		applied[r.Version] = r.AppliedAt
	}

	m.sortMigrations(false)
	status := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		entry := MigrationStatus{Version: migration.Version, Name: migration.Name}
		if at, ok := applied[migration.Version]; ok {
			at := at
			entry.Applied = true
			entry.AppliedAt = &at
		}
		status = append(status, entry)
	}
	return status, nil
}

func (m *Migrator) sortMigrations(desc bool) {
	sort.Slice(m.migrations, func(i, j int) bool {
		if desc {
			return m.migrations[i].Version > m.migrations[j].Version
		}
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

func (m *Migrator) log(format string, args ...interface{}) {
	if m.options.Logger != nil {
		m.options.Logger.Infof(format, args...)
	}
}

// Migrate registers and applies the application migrations on db
func Migrate(db *gorm.DB, log logrus.FieldLogger) error {
	migrator := NewMigrator(db, MigrateOptions{Logger: log})
	migrator.RegisterAllMigrations()
	return migrator.MigrateUp()
}
