package db

import "testing"

func TestMigrateFromScratch(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	applied, err := AppliedMigrations(database)
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), len(applied))
	}
	for i, m := range applied {
		if m.Version != i+1 {
			t.Errorf("expected version %d at position %d, got %d", i+1, i, m.Version)
		}
		if len(m.Checksum) != 64 {
			t.Errorf("migration %d has malformed checksum %q", m.Version, m.Checksum)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	applied, err := AppliedMigrations(database)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("re-running must not re-apply, got %d records", len(applied))
	}
}

func TestMigrateDetectsModifiedMigration(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	// Tamper with a recorded checksum; the next run must refuse to proceed.
	if _, err := database.Exec(
		`UPDATE schema_migrations SET checksum = ? WHERE version = 1`,
		"0000000000000000000000000000000000000000000000000000000000000000"); err != nil {
		t.Fatal(err)
	}

	if err := Migrate(database); err == nil {
		t.Error("expected checksum mismatch to fail migration")
	}
}
