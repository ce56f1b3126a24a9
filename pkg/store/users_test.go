package store

import (
	"context"
	"testing"

	"github.com/reelcache/reelcache/pkg/models"
)

func TestEnsureAdminUser_GeneratesPassword(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	password, err := st.EnsureAdminUser(ctx, "admin@example.com", "")
	if err != nil {
		t.Fatalf("EnsureAdminUser() error = %v", err)
	}
	if password == "" {
		t.Fatal("EnsureAdminUser() returned no password on first run")
	}

	admin, err := st.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if admin.Role != string(models.RoleAdmin) || !admin.Enabled {
		t.Errorf("admin = role %q enabled %v, want admin/true", admin.Role, admin.Enabled)
	}
	if !admin.CheckPassword(password) {
		t.Error("generated password does not validate")
	}

	// Second run is a no-op.
	password, err = st.EnsureAdminUser(ctx, "admin@example.com", "")
	if err != nil {
		t.Fatalf("EnsureAdminUser() second run error = %v", err)
	}
	if password != "" {
		t.Errorf("second run password = %q, want empty", password)
	}
}

func TestEnsureAdminUser_ConfiguredHash(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	hash, err := models.HashPassword("configured-secret")
	if err != nil {
		t.Fatal(err)
	}

	password, err := st.EnsureAdminUser(ctx, "admin@example.com", hash)
	if err != nil {
		t.Fatalf("EnsureAdminUser() error = %v", err)
	}
	if password != "" {
		t.Errorf("password = %q, want empty when the hash is configured", password)
	}

	admin, err := st.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if !admin.CheckPassword("configured-secret") {
		t.Error("configured credential does not validate")
	}
}
