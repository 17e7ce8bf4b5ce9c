package store

import (
	"testing"

	"github.com/hfoster/routinely/internal/model"

	"golang.org/x/crypto/bcrypt"
)

func TestFamilyMemberCRUD(t *testing.T) {
	db := setupTestDB(t)
	ms := NewFamilyMemberStore(db)

	m, err := ms.Create("Maya", model.RoleChild, "#e67e22", "🦊")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Role != model.RoleChild {
		t.Errorf("role = %q, want child", m.Role)
	}
	if m.HasPIN {
		t.Error("new member should not have a PIN")
	}

	updated, err := ms.Update(m.ID, "Maya R", model.RoleChild, "#e67e22", "🦝")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Maya R" || updated.AvatarEmoji != "🦝" {
		t.Errorf("updated = %+v", updated)
	}

	if err := ms.Delete(m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := ms.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Error("expected nil for deleted member")
	}
}

func TestListChildren(t *testing.T) {
	db := setupTestDB(t)
	ms := NewFamilyMemberStore(db)

	if _, err := ms.Create("Dana", model.RoleParent, "#333", "🧑"); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := ms.Create("Maya", model.RoleChild, "#e67e22", "🦊"); err != nil {
		t.Fatalf("create child: %v", err)
	}

	children, err := ms.ListChildren()
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].Name != "Maya" {
		t.Errorf("children = %+v", children)
	}
}

func TestPINLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ms := NewFamilyMemberStore(db)

	m, err := ms.Create("Dana", model.RoleParent, "#333", "🧑")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	if err := ms.SetPIN(m.ID, string(hash)); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	got, err := ms.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasPIN {
		t.Error("member should report a PIN")
	}

	stored, err := ms.GetPINHash(m.ID)
	if err != nil {
		t.Fatalf("get hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte("1234")); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}

	if err := ms.ClearPIN(m.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	got, _ = ms.GetByID(m.ID)
	if got.HasPIN {
		t.Error("PIN should be cleared")
	}
}
