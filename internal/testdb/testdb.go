// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out migrated sqlite databases for tests. Migrations
// run once per test binary into a template file that every test copies.
package testdb

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/licenseops/dunning/internal/database"
)

var template = sync.OnceValues(func() (string, error) {
	dir, err := os.MkdirTemp("", "dunning-testdb-")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "template.db")
	db, err := database.New(path)
	if err != nil {
		return "", err
	}
	return path, db.Close()
})

// Path copies the template into the test's temp dir and returns the copy.
func Path(t testing.TB) string {
	t.Helper()

	src, err := template()
	if err != nil {
		t.Fatalf("testdb: migrate template: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "dunning.db")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := copyFile(src+suffix, dst+suffix); err != nil {
			t.Fatalf("testdb: copy template: %v", err)
		}
	}
	return dst
}

// Open returns a private migrated database that is closed on cleanup.
func Open(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(Path(t))
	if err != nil {
		t.Fatalf("testdb: open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// copyFile skips a missing src, which is normal for the wal and shm files.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
