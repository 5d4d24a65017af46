package utils

import (
	"testing"
	"testing/fstest"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("explicit value overwritten: %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns != 25 || c.ConnMaxLifetime != 30*time.Minute || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_settings.sql": {Data: []byte("SELECT 1")},
		"0001_init.sql":     {Data: []byte("SELECT 1")},
		"embed.go":          {Data: []byte("package migrations")},
		"README.md":         {Data: []byte("notes")},
	}
	got, err := MigrationFiles(fsys)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0] != "0001_init.sql" || got[1] != "0002_settings.sql" {
		t.Fatalf("unexpected files %v", got)
	}
}
