package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *database.User {
	t.Helper()
	user := &database.User{Username: username, PasswordHash: "x", Role: role}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}
	return user
}

func TestResolveAudienceExcludesActor(t *testing.T) {
	db := newTestDB(t)

	owner := seedUser(t, db, "owner", database.RoleOwner)
	hr := seedUser(t, db, "hr", database.RoleHR)
	hm := seedUser(t, db, "hm", database.RoleHiringManager)
	seedUser(t, db, "other_hm", database.RoleHiringManager)

	h := NewRequisitionNotifyHandler(db, nil, slog.Default())
	req := database.JobRequisition{HiringManagerID: hm.ID}

	// HM 发起动作：通知全部 HR/Owner，不通知 HM 自己。
	audience, err := h.resolveAudience(context.Background(), req, hm.ID)
	if err != nil {
		t.Fatalf("resolve audience: %v", err)
	}
	if len(audience) != 2 || !slices.Contains(audience, owner.ID) || !slices.Contains(audience, hr.ID) {
		t.Fatalf("audience = %v, want owner and hr", audience)
	}

	// HR 发起动作：通知 Owner 与负责的 HM。
	audience, err = h.resolveAudience(context.Background(), req, hr.ID)
	if err != nil {
		t.Fatalf("resolve audience: %v", err)
	}
	if len(audience) != 2 || !slices.Contains(audience, owner.ID) || !slices.Contains(audience, hm.ID) {
		t.Fatalf("audience = %v, want owner and hm", audience)
	}
}
