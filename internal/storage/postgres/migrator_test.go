package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].version != 1 || migrations[0].name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].version != 2 || migrations[1].String() != "0002_more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0].up, "CHECK (stock >= 0)") {
		t.Fatal("products table must reject negative stock")
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fsys fstest.MapFS
		want string
	}{
		"missing down": {
			fsys: fstest.MapFS{
				"migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE a (id INT);")},
			},
			want: "both up and down",
		},
		"invalid name": {
			fsys: fstest.MapFS{
				"migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
			},
			want: "invalid migration file name",
		},
		"empty body": {
			fsys: fstest.MapFS{
				"migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			want: "empty",
		},
		"name mismatch": {
			fsys: fstest.MapFS{
				"migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
				"migrations/0001_other.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			want: "conflicting names",
		},
		"no files": {
			fsys: fstest.MapFS{},
			want: "no migration files",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := loadMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
