package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/memora/internal/gallery"
)

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file should exist after creating store: %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_Schema(t *testing.T) {
	s := newTestStore(t)

	objects := []struct {
		kind string
		name string
	}{
		{"table", "family_members"},
		{"table", "enrollment_images"},
		{"table", "member_updates"},
		{"table", "gallery_snapshots"},
		{"table", "gallery_entries"},
		{"table", "recognition_sessions"},
		{"index", "idx_enrollment_images_member_id"},
		{"index", "idx_member_updates_member_id"},
		{"index", "idx_gallery_entries_fingerprint"},
		{"index", "idx_recognition_sessions_started_at"},
	}
	for _, o := range objects {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = ? AND name = ?", o.kind, o.name,
		).Scan(&name)
		if err != nil {
			t.Errorf("%s %q should exist after migrations: %v", o.kind, o.name, err)
		}
	}
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.Members().Create(&Member{ID: "m-1", Name: "Priya"}); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopening an existing database: %v", err)
	}
	defer second.Close()

	if _, err := second.Members().GetByID("m-1"); err != nil {
		t.Errorf("member lost after reopening: %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysOnEveryConnection(t *testing.T) {
	s := newTestStore(t)
	s.DB().SetMaxOpenConns(4)

	var conns []*sql.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < 3; i++ {
		conn, err := s.DB().Conn(context.Background())
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		conns = append(conns, conn)

		var enabled int
		if err := conn.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
			t.Fatalf("failed to check foreign keys pragma: %v", err)
		}
		if enabled != 1 {
			t.Errorf("connection %d: foreign keys disabled", i)
		}
	}
}

func TestStore_RejectsOrphans(t *testing.T) {
	s := newTestStore(t)

	if err := s.Enrollments().Add(&EnrollmentImage{ID: "i-1", MemberID: "ghost", Filename: "a.jpg", Data: []byte{1}}); err == nil {
		t.Error("enrollment image for a missing member was accepted")
	}
	if err := s.Updates().Add(&Update{ID: "u-1", MemberID: "ghost", Content: "news"}); err == nil {
		t.Error("update for a missing member was accepted")
	}
	_, err := s.DB().Exec(
		`INSERT INTO gallery_entries (fingerprint, position, identity, embedding) VALUES ('nope', 0, 'a', x'00')`,
	)
	if err == nil {
		t.Error("gallery entry without a snapshot was accepted")
	}
}

func TestStore_MemberDeleteCascades(t *testing.T) {
	s := newTestStore(t)

	if err := s.Members().Create(&Member{ID: "m-1", Name: "Priya"}); err != nil {
		t.Fatal(err)
	}
	s.Enrollments().Add(&EnrollmentImage{ID: "i-1", MemberID: "m-1", Filename: "a.jpg", Data: []byte{1}})
	s.Updates().Add(&Update{ID: "u-1", MemberID: "m-1", Content: "Started a new job"})

	if err := s.Members().Delete("m-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for _, table := range []string{"enrollment_images", "member_updates"} {
		var n int
		if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after member delete, want 0", table, n)
		}
	}
}

func TestStore_GallerySnapshotDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []gallery.Entry{
		{Identity: "a", Embedding: []float32{0.1, 0.2}},
		{Identity: "b", Embedding: []float32{0.3, 0.4}},
	}
	if err := s.GalleryCache().SaveGallery(ctx, "fp-1", entries); err != nil {
		t.Fatalf("SaveGallery() error = %v", err)
	}

	countEntries := func() int {
		var n int
		if err := s.DB().QueryRow(`SELECT COUNT(*) FROM gallery_entries WHERE fingerprint = 'fp-1'`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		return n
	}
	if n := countEntries(); n != 2 {
		t.Fatalf("gallery_entries = %d, want 2", n)
	}

	if _, err := s.DB().Exec(`DELETE FROM gallery_snapshots WHERE fingerprint = 'fp-1'`); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	if n := countEntries(); n != 0 {
		t.Errorf("gallery_entries = %d after snapshot delete, want 0", n)
	}
	if _, ok, err := s.GalleryCache().LoadGallery(ctx, "fp-1"); err != nil || ok {
		t.Errorf("LoadGallery() after delete = ok %v, err %v; want a miss", ok, err)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"memora.db", "memora.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:memora.db?mode=rwc", "file:memora.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
