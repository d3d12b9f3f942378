package models

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-crudgate/gate"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&User{}, &Invoice{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestBase_CreateStampsOwner(t *testing.T) {
	db := openTestDB(t)

	inv := Invoice{Number: "INV-2026-0001", ClientName: "ACME"}
	if err := WithActor(db, "user-1").Create(&inv).Error; err != nil {
		t.Fatal(err)
	}
	if inv.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if inv.CreatedBy != "user-1" {
		t.Errorf("CreatedBy = %q, want user-1", inv.CreatedBy)
	}
	if inv.RecordID() != inv.ID || inv.OwnerID() != "user-1" {
		t.Errorf("RecordID/OwnerID = %q/%q", inv.RecordID(), inv.OwnerID())
	}
}

func TestBase_CreateKeepsExplicitID(t *testing.T) {
	db := openTestDB(t)

	inv := Invoice{Base: Base{ID: "fixed-id", CreatedBy: "importer"}, Number: "INV-2", ClientName: "ACME"}
	if err := WithActor(db, "user-1").Create(&inv).Error; err != nil {
		t.Fatal(err)
	}
	if inv.ID != "fixed-id" || inv.CreatedBy != "importer" {
		t.Errorf("got id=%q created_by=%q", inv.ID, inv.CreatedBy)
	}
}

func TestBase_UpdateStampsUpdatedBy(t *testing.T) {
	db := openTestDB(t)

	inv := Invoice{Number: "INV-3", ClientName: "ACME"}
	if err := WithActor(db, "user-1").Create(&inv).Error; err != nil {
		t.Fatal(err)
	}
	err := WithActor(db, "user-2").Model(&Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"client_name": "Globex"}).Error
	if err != nil {
		t.Fatal(err)
	}

	var got Invoice
	if err := db.First(&got, "id = ?", inv.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.ClientName != "Globex" {
		t.Errorf("ClientName = %q", got.ClientName)
	}
	if got.UpdatedBy != "user-2" {
		t.Errorf("UpdatedBy = %q, want user-2", got.UpdatedBy)
	}
	if got.CreatedBy != "user-1" {
		t.Errorf("CreatedBy = %q, want user-1", got.CreatedBy)
	}
}

func TestActor(t *testing.T) {
	db := openTestDB(t)
	if _, ok := Actor(db); ok {
		t.Error("expected no actor on a plain session")
	}
	if _, ok := Actor(WithActor(db, "")); ok {
		t.Error("blank actor must not count")
	}
	if a, ok := Actor(WithActor(db, "u")); !ok || a != "u" {
		t.Errorf("Actor = %q, %v", a, ok)
	}
}

func TestUser_GroupIDsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	u := User{Username: "ann", Email: "ann@example.com", IsActive: true, GroupIDs: []string{"g1", "g2"}}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	var got User
	if err := db.First(&got, "id = ?", u.ID).Error; err != nil {
		t.Fatal(err)
	}
	gu := got.Gate()
	if len(gu.GroupIDs) != 2 || gu.GroupIDs[1] != "g2" || !gu.IsActive {
		t.Errorf("Gate() = %+v", gu)
	}
}

func TestRoleService_Scope(t *testing.T) {
	tests := []struct {
		category string
		want     gate.GrantScope
	}{
		{"table", gate.CollectionScope("x")},
		{"Collection", gate.CollectionScope("x")},
		{"record", gate.RecordScope("x")},
		{"DOCUMENT", gate.RecordScope("x")},
		{"function", gate.GrantScope{Target: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			rs := RoleService{ServiceID: "x", ServiceCategory: tt.category, CanRead: true}
			if got := rs.Scope(); got != tt.want {
				t.Errorf("Scope() = %+v, want %+v", got, tt.want)
			}
			if g := rs.Gate(); !g.CanRead || g.CanDelete {
				t.Errorf("Gate() flags = %+v", g)
			}
		})
	}
}

func TestInvoice_Status(t *testing.T) {
	tests := []struct {
		name    string
		status  InvoiceStatus
		isDraft bool
		isFinal bool
	}{
		{"empty", "", true, false},
		{"draft", InvoiceStatusDraft, true, false},
		{"final", InvoiceStatusFinal, false, true},
		{"paid", InvoiceStatusPaid, false, true},
		{"cancelled", InvoiceStatusCancelled, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := Invoice{Status: tt.status}
			if got := inv.IsDraft(); got != tt.isDraft {
				t.Errorf("IsDraft() = %v, want %v", got, tt.isDraft)
			}
			if got := inv.IsFinal(); got != tt.isFinal {
				t.Errorf("IsFinal() = %v, want %v", got, tt.isFinal)
			}
		})
	}
}
