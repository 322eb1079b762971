package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/funko-orders/internal/app"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/postgres"
)

func lookup(values map[string]string) app.EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

type fakeMigrator struct {
	calls []string
	steps int
	err   error
	state postgres.MigrationState
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	f.calls = append(f.calls, "status")
	return f.state, nil
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction", " DOWN ", "-steps", "2"}, lookup(map[string]string{
		app.EnvPostgresDSN: " postgres://env ",
	}))
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://env" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseOptions([]string{"-dsn", "postgres://flag"}, lookup(map[string]string{
		app.EnvPostgresDSN: "postgres://env",
	}))
	if err != nil || opts.dsn != "postgres://flag" || opts.direction != "up" {
		t.Fatalf("flag dsn must win: %+v %v", opts, err)
	}
}

func TestParseOptions_Errors(t *testing.T) {
	cases := map[string][]string{
		"missing dsn":   {},
		"bad direction": {"-direction", "sideways", "-dsn", "postgres://x"},
		"unknown flag":  {"-force"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseOptions(args, lookup(nil)); !errors.Is(err, errUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	m := &fakeMigrator{state: postgres.MigrationState{Version: 2, Applied: 2}}
	var out bytes.Buffer

	if err := execute(context.Background(), m, options{direction: "up", steps: 0}, &out); err != nil {
		t.Fatalf("execute up: %v", err)
	}
	if strings.Join(m.calls, ",") != "up,status" {
		t.Fatalf("unexpected calls: %v", m.calls)
	}
	if !strings.Contains(out.String(), "version=2 applied=2 pending=0") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	m.calls = nil
	if err := execute(context.Background(), m, options{direction: "status"}, &out); err != nil {
		t.Fatalf("execute status: %v", err)
	}
	if strings.Join(m.calls, ",") != "status" {
		t.Fatalf("status must not migrate: %v", m.calls)
	}
}

func TestExecute_Error(t *testing.T) {
	m := &fakeMigrator{err: errors.New("lock timeout")}
	err := execute(context.Background(), m, options{direction: "down", steps: 1}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "migrate down failed") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
