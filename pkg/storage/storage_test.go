package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mirror.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func campaignEntity(remoteID string) *Entity {
	return &Entity{
		LocalID:  "local-" + remoteID,
		Kind:     KindCampaign,
		RemoteID: remoteID,
		Fields:   map[string]interface{}{"name": "Spring Sale", "objective": "OUTCOME_TRAFFIC"},
		Status:   StatusDraft,
	}
}

func TestCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := campaignEntity("camp_1")
	e.RemoteSnapshot = json.RawMessage(`{"id":"camp_1"}`)
	if err := db.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetByRemoteID(ctx, KindCampaign, "camp_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RemoteID != "camp_1" || got.Status != StatusDraft {
		t.Fatalf("unexpected entity: %+v", got)
	}
	if got.Fields["name"] != "Spring Sale" {
		t.Fatalf("fields not round-tripped: %v", got.Fields)
	}
	if string(got.RemoteSnapshot) != `{"id":"camp_1"}` {
		t.Fatalf("snapshot not stored verbatim: %s", got.RemoteSnapshot)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestCreateDuplicateRemoteID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Create(ctx, campaignEntity("camp_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := db.Create(ctx, campaignEntity("camp_1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same remote id under a different kind is allowed.
	ad := campaignEntity("camp_1")
	ad.Kind = KindAd
	ad.ParentRemoteID = "adset_1"
	if err := db.Create(ctx, ad); err != nil {
		t.Fatalf("cross-kind create: %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetByRemoteID(context.Background(), KindAd, "ad_9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrderedByDescendingCreation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := campaignEntity(fmt.Sprintf("camp_%d", i))
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := db.Create(ctx, e); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	got, err := db.List(ctx, ListOptions{Kind: KindCampaign})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(got))
	}
	if got[0].RemoteID != "camp_2" || got[2].RemoteID != "camp_0" {
		t.Fatalf("wrong order: %s, %s, %s", got[0].RemoteID, got[1].RemoteID, got[2].RemoteID)
	}
}

func TestListFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	active := campaignEntity("camp_a")
	active.Status = StatusActive
	if err := db.Create(ctx, active); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(ctx, campaignEntity("camp_b")); err != nil {
		t.Fatalf("create: %v", err)
	}
	child := &Entity{LocalID: "l1", Kind: KindAdSet, RemoteID: "adset_1", ParentRemoteID: "camp_a", Fields: map[string]interface{}{}, Status: StatusDraft}
	if err := db.Create(ctx, child); err != nil {
		t.Fatalf("create child: %v", err)
	}

	byStatus, err := db.List(ctx, ListOptions{Kind: KindCampaign, Status: StatusActive})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].RemoteID != "camp_a" {
		t.Fatalf("unexpected status filter result: %+v", byStatus)
	}

	byParent, err := db.List(ctx, ListOptions{Kind: KindAdSet, ParentRemoteID: "camp_a"})
	if err != nil {
		t.Fatalf("list by parent: %v", err)
	}
	if len(byParent) != 1 || byParent[0].RemoteID != "adset_1" {
		t.Fatalf("unexpected parent filter result: %+v", byParent)
	}
}

func TestUpdateRefreshesUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := campaignEntity("camp_1")
	e.CreatedAt = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	if err := db.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	e.Status = StatusActive
	e.Fields["name"] = "Renamed"
	if err := db.Update(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := db.GetByRemoteID(ctx, KindCampaign, "camp_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusActive || got.Fields["name"] != "Renamed" {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("updated_at not refreshed: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestUpdateAndRemoveMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Update(ctx, campaignEntity("ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := db.Remove(ctx, KindCampaign, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove: expected ErrNotFound, got %v", err)
	}
}

func TestRemoveKeepsAuditTrail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ad := &Entity{LocalID: "l1", Kind: KindAd, RemoteID: "ad_1", ParentRemoteID: "adset_1", Fields: map[string]interface{}{}, Status: StatusPaused}
	if err := db.Create(ctx, ad); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.AppendAudit(ctx, KindAd, "ad_1", ActionCreate, json.RawMessage(`{"id":"ad_1"}`), true); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Remove(ctx, KindAd, "ad_1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	trail, err := db.ListAudit(ctx, KindAd, "ad_1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("audit trail should survive removal, got %d records", len(trail))
	}
}

func TestAuditBoundTrimsOldest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < AuditBound+1; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
		if err := db.AppendAudit(ctx, KindAd, "ad_1", ActionUpdate, payload, true); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	trail, err := db.ListAudit(ctx, KindAd, "ad_1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != AuditBound {
		t.Fatalf("expected %d records, got %d", AuditBound, len(trail))
	}
	// Oldest (n=0) dropped, newest retained, order preserved.
	if string(trail[0].Payload) != `{"n":1}` {
		t.Fatalf("oldest record not dropped first: %s", trail[0].Payload)
	}
	if string(trail[len(trail)-1].Payload) != fmt.Sprintf(`{"n":%d}`, AuditBound) {
		t.Fatalf("newest record missing: %s", trail[len(trail)-1].Payload)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Create(ctx, campaignEntity("camp_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.AppendAudit(ctx, KindCampaign, "camp_1", ActionCreate, nil, true); err != nil {
		t.Fatalf("append: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Kind != KindCampaign || stats[0].EntityCount != 1 || stats[0].AuditCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
