package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/XANi/hassbridge/hass"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ConfigEntry row. Data holds credentials, so the database should not be world readable.
type ConfigEntry struct {
	ID        string            `gorm:"primaryKey;size:64"`
	Domain    string            `gorm:"index;size:64"`
	Title     string            `gorm:"size:255"`
	Data      map[string]string `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceEntry is one device registry record.
type DeviceEntry struct {
	ID           uint   `gorm:"primaryKey"`
	Domain       string `gorm:"uniqueIndex:idx_device_ident;size:64"`
	DeviceID     string `gorm:"uniqueIndex:idx_device_ident;size:128"`
	EntryID      string `gorm:"index;size:64"`
	Name         string `gorm:"size:255"`
	Manufacturer string `gorm:"size:255"`
	Model        string `gorm:"size:255"`
	SWVersion    string `gorm:"size:64"`
	UpdatedAt    time.Time
}

type Config struct {
	// DSN is a postgres URL or key=value string, anything else is a sqlite file
	DSN    string
	Logger *zap.SugaredLogger
}

// Store persists config entries and the device registry.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

type gormLog struct {
	log *zap.SugaredLogger
}

func (g gormLog) Printf(format string, args ...interface{}) {
	g.log.Debugf(format, args...)
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
}

func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	d := dialector(cfg.DSN)
	cfg.Logger.Infof("using %s database", d.Name())
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.New(gormLog{log: cfg.Logger.Named("gorm")}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&ConfigEntry{}, &DeviceEntry{}); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &Store{db: db, log: cfg.Logger}, nil
}

func (s *Store) SaveConfigEntry(ctx context.Context, e hass.ConfigEntry) error {
	row := ConfigEntry{ID: e.ID, Domain: e.Domain, Title: e.Title, Data: e.Data}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"domain", "title", "data", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) ConfigEntries(ctx context.Context, domain string) ([]hass.ConfigEntry, error) {
	var rows []ConfigEntry
	err := s.db.WithContext(ctx).Where("domain = ?", domain).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]hass.ConfigEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, hass.ConfigEntry{ID: r.ID, Domain: r.Domain, Title: r.Title, Data: r.Data})
	}
	return out, nil
}

// DeleteConfigEntry removes the entry and every device registered under it.
func (s *Store) DeleteConfigEntry(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", id).Delete(&DeviceEntry{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&ConfigEntry{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s: %w", id, hass.ErrEntryNotFound)
		}
		s.log.Debugf("deleted config entry %s", id)
		return nil
	})
}

// UpsertDevice creates or refreshes the record identified by info.Identifier.
func (s *Store) UpsertDevice(ctx context.Context, entryID string, info hass.DeviceInfo) error {
	row := DeviceEntry{
		Domain:       info.Identifier.Domain,
		DeviceID:     info.Identifier.ID,
		EntryID:      entryID,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		SWVersion:    info.SWVersion,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_id", "name", "manufacturer", "model", "sw_version", "updated_at"}),
	}).Create(&row).Error
}

// RemoveDevice is a no-op for unknown devices.
func (s *Store) RemoveDevice(ctx context.Context, id hass.DeviceIdentifier) error {
	return s.db.WithContext(ctx).
		Where("domain = ? AND device_id = ?", id.Domain, id.ID).
		Delete(&DeviceEntry{}).Error
}

// Devices lists registry records, all of them when entryID is empty.
func (s *Store) Devices(ctx context.Context, entryID string) ([]DeviceEntry, error) {
	var rows []DeviceEntry
	q := s.db.WithContext(ctx).Order("domain, device_id")
	if entryID != "" {
		q = q.Where("entry_id = ?", entryID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
