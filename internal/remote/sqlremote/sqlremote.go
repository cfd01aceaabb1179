// Package sqlremote keeps the remote tables in a MySQL database.
package sqlremote

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"nirmaan/internal/remote"
)

//go:embed schema.sql
var schemaSQL string

type Tables struct {
	db *gorm.DB
}

var _ remote.TableStore = (*Tables)(nil)

// ParseDSN reads a DSN written without its password and fills in the
// password separately, so the secret can live in its own setting.
func ParseDSN(dsn, password string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.Passwd = password
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg, nil
}

// Open connects and creates any missing tables.
func Open(ctx context.Context, dsn, password string) (*Tables, error) {
	cfg, err := ParseDSN(dsn, password)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if sqlDB, derr := db.DB(); derr == nil {
		sqlDB.SetMaxOpenConns(6)
		sqlDB.SetConnMaxIdleTime(time.Minute)
	}
	t := &Tables{db: db}
	if err := t.EnsureSchema(ctx); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// EnsureSchema runs every CREATE TABLE IF NOT EXISTS statement.
func (t *Tables) EnsureSchema(ctx context.Context) error {
	for _, stmt := range statements(schemaSQL) {
		if err := t.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tables) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (t *Tables) Upsert(ctx context.Context, table string, rows []remote.Row) error {
	if !remote.KnownTable(table) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	if len(rows) == 0 {
		return nil
	}
	records, cols := toRecords(table, rows)
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != remote.ColID {
			updates = append(updates, c)
		}
	}
	err := t.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: remote.ColID}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(records).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// toRecords gives every row the same column set: the table's columns.
// Columns the schema does not know are dropped.
func toRecords(table string, rows []remote.Row) ([]map[string]interface{}, []string) {
	cols := remote.Columns(table)
	sort.Strings(cols)
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		rec := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			v, ok := r[c]
			if !ok {
				v = nil
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	return out, cols
}

func (t *Tables) Delete(ctx context.Context, table string, ids []string) error {
	if !remote.KnownTable(table) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	if len(ids) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).Exec("DELETE FROM `"+table+"` WHERE id IN ?", ids).Error
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func (t *Tables) SelectAll(ctx context.Context, table string) ([]remote.Row, error) {
	if !remote.KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	var records []map[string]interface{}
	if err := t.db.WithContext(ctx).Table(table).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	out := make([]remote.Row, 0, len(records))
	for _, rec := range records {
		out = append(out, remote.Row(rec))
	}
	return out, nil
}
