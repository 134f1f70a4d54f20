package db

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// openTestDB opens an initialized cache in a temp dir with a mock clock.
func openTestDB(t *testing.T) (*DB, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path, WithClock(clk), WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db, clk
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	var mode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db, _ := openTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"lots", "favorites", "favorite_versions", "reservations", "profile"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestLots_UpsertAndLoad(t *testing.T) {
	db, clk := openTestDB(t)

	updated := time.Date(2025, 2, 28, 8, 30, 0, 0, time.UTC)
	lots := []*schema.Lot{
		{
			ID: "2", Name: "Wan Chai Parking", Address: "456 Hennessy Road",
			Latitude: 22.2783, Longitude: 114.1747,
			TotalSpaces: schema.IntPtr(150), AvailableSpaces: schema.IntPtr(30),
			Facilities: &schema.Facilities{CCTV: schema.BoolPtr(true)},
		},
		{
			ID: "1", Name: "Central Parking", Address: "123 Queen's Road Central",
			Latitude: 22.2819, Longitude: 114.1556,
			TotalSpaces: schema.IntPtr(200),
			HourlyPrice: schema.FloatPtr(25),
			LastUpdated: schema.TimePtr(updated),
		},
	}

	if err := db.UpsertLots(lots); err != nil {
		t.Fatalf("UpsertLots() failed: %v", err)
	}
	for _, lot := range lots {
		if !lot.CachedAt.Equal(testNow) {
			t.Errorf("lot %s CachedAt = %v, want %v", lot.ID, lot.CachedAt, testNow)
		}
	}

	got, err := db.LoadLots()
	if err != nil {
		t.Fatalf("LoadLots() failed: %v", err)
	}
	want := []*schema.Lot{lots[1], lots[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadLots() mismatch (-want +got):\n%s", diff)
	}
	if got[1].AvailableSpaces == nil || *got[1].AvailableSpaces != 30 {
		t.Errorf("AvailableSpaces lost in round trip")
	}
	if got[0].AvailableSpaces != nil {
		t.Errorf("unknown AvailableSpaces came back as %d", *got[0].AvailableSpaces)
	}

	// Replacing a lot overwrites every column, including clearing fields.
	clk.Add(time.Hour)
	replacement := &schema.Lot{ID: "2", Name: "Wan Chai Parking", Latitude: 22.2783, Longitude: 114.1747}
	if err := db.UpsertLots([]*schema.Lot{replacement}); err != nil {
		t.Fatalf("UpsertLots() replacement failed: %v", err)
	}
	got, err = db.LoadLots()
	if err != nil {
		t.Fatalf("LoadLots() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(LoadLots()) = %d, want 2", len(got))
	}
	if got[1].TotalSpaces != nil || got[1].Facilities != nil {
		t.Errorf("replacement kept stale fields: %+v", got[1])
	}
}

func TestLots_InvalidRejected(t *testing.T) {
	db, _ := openTestDB(t)

	err := db.UpsertLots([]*schema.Lot{{ID: "", Name: "x"}})
	if err == nil {
		t.Fatal("UpsertLots() with empty id succeeded")
	}
	if count, _ := db.Counts(); count.Lots != 0 {
		t.Errorf("invalid batch wrote %d lots", count.Lots)
	}
}

func TestGetCacheTimestamp(t *testing.T) {
	db, clk := openTestDB(t)

	ts, err := db.GetCacheTimestamp()
	if err != nil {
		t.Fatalf("GetCacheTimestamp() failed: %v", err)
	}
	if ts != nil {
		t.Errorf("GetCacheTimestamp() on empty cache = %v, want nil", ts)
	}

	lot := &schema.Lot{ID: "1", Name: "Central Parking", Latitude: 22.28, Longitude: 114.15}
	if err := db.UpsertLots([]*schema.Lot{lot}); err != nil {
		t.Fatalf("UpsertLots() failed: %v", err)
	}
	clk.Add(90 * time.Minute)
	lot2 := &schema.Lot{ID: "2", Name: "Admiralty Parking", Latitude: 22.28, Longitude: 114.16}
	if err := db.UpsertLots([]*schema.Lot{lot2}); err != nil {
		t.Fatalf("UpsertLots() failed: %v", err)
	}

	ts, err = db.GetCacheTimestamp()
	if err != nil {
		t.Fatalf("GetCacheTimestamp() failed: %v", err)
	}
	want := testNow.Add(90 * time.Minute)
	if ts == nil || !ts.Equal(want) {
		t.Errorf("GetCacheTimestamp() = %v, want %v", ts, want)
	}
}

func TestFavorites_DoubleToggleRestores(t *testing.T) {
	db, _ := openTestDB(t)

	on, v1, err := db.ToggleFavorite("u1", "lot-1")
	if err != nil {
		t.Fatalf("ToggleFavorite() failed: %v", err)
	}
	if !on || v1 != 1 {
		t.Errorf("first toggle = (%v, %d), want (true, 1)", on, v1)
	}

	off, v2, err := db.ToggleFavorite("u1", "lot-1")
	if err != nil {
		t.Fatalf("ToggleFavorite() failed: %v", err)
	}
	if off || v2 != 2 {
		t.Errorf("second toggle = (%v, %d), want (false, 2)", off, v2)
	}

	fav, err := db.IsFavorite("u1", "lot-1")
	if err != nil {
		t.Fatalf("IsFavorite() failed: %v", err)
	}
	if fav {
		t.Error("IsFavorite() = true after double toggle")
	}

	v, err := db.FavoriteVersion("u1", "lot-1")
	if err != nil {
		t.Fatalf("FavoriteVersion() failed: %v", err)
	}
	if v != 2 {
		t.Errorf("FavoriteVersion() = %d, want 2", v)
	}
}

func TestFavorites_PartitionedByUser(t *testing.T) {
	db, _ := openTestDB(t)

	for _, id := range []string{"a", "b"} {
		if _, _, err := db.ToggleFavorite("u1", id); err != nil {
			t.Fatalf("ToggleFavorite() failed: %v", err)
		}
	}
	if _, _, err := db.ToggleFavorite("u2", "c"); err != nil {
		t.Fatalf("ToggleFavorite() failed: %v", err)
	}

	got, err := db.ListFavorites("u1")
	if err != nil {
		t.Fatalf("ListFavorites() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("ListFavorites(u1) mismatch (-want +got):\n%s", diff)
	}

	if v, _ := db.FavoriteVersion("u2", "a"); v != 0 {
		t.Errorf("untouched edge version = %d, want 0", v)
	}
}

func TestAddFavorite_Idempotent(t *testing.T) {
	db, _ := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.AddFavorite("u1", "lot-1"); err != nil {
			t.Fatalf("AddFavorite() failed: %v", err)
		}
	}

	got, _ := db.ListFavorites("u1")
	if len(got) != 1 {
		t.Errorf("ListFavorites() = %v, want one edge", got)
	}
	if v, _ := db.FavoriteVersion("u1", "lot-1"); v != 1 {
		t.Errorf("FavoriteVersion() = %d, want 1", v)
	}

	if err := db.AddFavorite("", "lot-1"); err == nil {
		t.Error("AddFavorite() with empty user succeeded")
	}
}

func TestFavorites_ConcurrentToggles(t *testing.T) {
	db, _ := openTestDB(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := db.ToggleFavorite("u1", "lot-1"); err != nil {
				t.Errorf("ToggleFavorite() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// An even number of toggles leaves the edge absent.
	if fav, _ := db.IsFavorite("u1", "lot-1"); fav {
		t.Error("IsFavorite() = true after even number of toggles")
	}
	if v, _ := db.FavoriteVersion("u1", "lot-1"); v != n {
		t.Errorf("FavoriteVersion() = %d, want %d", v, n)
	}
}

func newReservation(id, user, spot string, start time.Time) *schema.Reservation {
	return &schema.Reservation{
		ID:            id,
		UserID:        user,
		SpotID:        spot,
		StartTime:     start,
		Status:        schema.StatusActive,
		PaymentStatus: schema.PaymentPending,
		TotalCost:     15,
	}
}

func TestReservations_UpsertListGet(t *testing.T) {
	db, _ := openTestDB(t)

	r1 := newReservation("r1", "u1", "A-101", testNow)
	r2 := newReservation("r2", "u1", "B-201", testNow.Add(time.Hour))
	other := newReservation("r3", "u2", "C-301", testNow)

	for _, r := range []*schema.Reservation{r1, r2, other} {
		if err := db.UpsertReservation(r); err != nil {
			t.Fatalf("UpsertReservation(%s) failed: %v", r.ID, err)
		}
	}

	got, err := db.ListReservations("u1")
	if err != nil {
		t.Fatalf("ListReservations() failed: %v", err)
	}
	if diff := cmp.Diff([]*schema.Reservation{r1, r2}, got); diff != "" {
		t.Errorf("ListReservations() mismatch (-want +got):\n%s", diff)
	}

	// Updating r1 keeps it first.
	end := testNow.Add(2 * time.Hour)
	r1.Status = schema.StatusCompleted
	r1.EndTime = &end
	if err := db.UpsertReservation(r1); err != nil {
		t.Fatalf("UpsertReservation() update failed: %v", err)
	}
	got, _ = db.ListReservations("u1")
	if len(got) != 2 || got[0].ID != "r1" || got[0].Status != schema.StatusCompleted {
		t.Errorf("after update ListReservations() = %+v", got)
	}

	one, err := db.GetReservation("r3")
	if err != nil {
		t.Fatalf("GetReservation() failed: %v", err)
	}
	if one == nil || one.UserID != "u2" {
		t.Errorf("GetReservation(r3) = %+v", one)
	}
	if missing, _ := db.GetReservation("nope"); missing != nil {
		t.Errorf("GetReservation(nope) = %+v, want nil", missing)
	}
}

func TestReservations_InvalidStatusRejected(t *testing.T) {
	db, _ := openTestDB(t)

	r := newReservation("r1", "u1", "A-101", testNow)
	r.Status = "pending"
	if err := db.UpsertReservation(r); err == nil {
		t.Error("UpsertReservation() accepted status outside the enum")
	}
}

func TestReplaceReservations(t *testing.T) {
	db, _ := openTestDB(t)

	for _, r := range []*schema.Reservation{
		newReservation("old", "u1", "A-101", testNow),
		newReservation("keep-other-user", "u2", "A-102", testNow),
	} {
		if err := db.UpsertReservation(r); err != nil {
			t.Fatalf("UpsertReservation() failed: %v", err)
		}
	}

	merged := []*schema.Reservation{
		newReservation("z", "u1", "B-201", testNow),
		newReservation("a", "u1", "B-202", testNow),
	}
	if err := db.ReplaceReservations("u1", merged); err != nil {
		t.Fatalf("ReplaceReservations() failed: %v", err)
	}

	got, _ := db.ListReservations("u1")
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"z", "a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if others, _ := db.ListReservations("u2"); len(others) != 1 {
		t.Errorf("other user's reservations = %d, want 1", len(others))
	}

	wrongUser := []*schema.Reservation{newReservation("x", "u2", "C-301", testNow)}
	if err := db.ReplaceReservations("u1", wrongUser); err == nil {
		t.Error("ReplaceReservations() accepted another user's reservation")
	}
}

func TestActiveReservationForSpot(t *testing.T) {
	db, _ := openTestDB(t)

	if r, err := db.ActiveReservationForSpot("A-101"); err != nil || r != nil {
		t.Fatalf("ActiveReservationForSpot() on empty = (%v, %v)", r, err)
	}

	r := newReservation("r1", "u1", "A-101", testNow)
	if err := db.UpsertReservation(r); err != nil {
		t.Fatalf("UpsertReservation() failed: %v", err)
	}
	got, err := db.ActiveReservationForSpot("A-101")
	if err != nil || got == nil || got.ID != "r1" {
		t.Fatalf("ActiveReservationForSpot() = (%v, %v), want r1", got, err)
	}

	r.Status = schema.StatusCancelled
	if err := db.UpsertReservation(r); err != nil {
		t.Fatalf("UpsertReservation() failed: %v", err)
	}
	if got, _ := db.ActiveReservationForSpot("A-101"); got != nil {
		t.Errorf("cancelled reservation still holds spot: %+v", got)
	}

	if err := db.DeleteReservation("r1"); err != nil {
		t.Fatalf("DeleteReservation() failed: %v", err)
	}
	if err := db.DeleteReservation("r1"); err != nil {
		t.Errorf("second DeleteReservation() failed: %v", err)
	}
}

func TestProfile_SaveLoadClear(t *testing.T) {
	db, _ := openTestDB(t)

	if p, err := db.LoadProfile(); err != nil || p != nil {
		t.Fatalf("LoadProfile() on empty = (%v, %v)", p, err)
	}

	want := &schema.UserProfile{
		ID:           "u1",
		Email:        "amy@example.com",
		Name:         "Amy",
		PhoneNumber:  "+852 5555 0000",
		LicensePlate: schema.StringPtr("AB 1234"),
	}
	if err := db.SaveProfile(want); err != nil {
		t.Fatalf("SaveProfile() failed: %v", err)
	}

	got, err := db.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadProfile() mismatch (-want +got):\n%s", diff)
	}

	if err := db.ClearProfile(); err != nil {
		t.Fatalf("ClearProfile() failed: %v", err)
	}
	if p, _ := db.LoadProfile(); p != nil {
		t.Errorf("LoadProfile() after clear = %+v", p)
	}
}

func TestCounts(t *testing.T) {
	db, _ := openTestDB(t)

	_ = db.UpsertLots([]*schema.Lot{{ID: "1", Name: "x"}})
	_, _, _ = db.ToggleFavorite("u1", "1")
	_ = db.UpsertReservation(newReservation("r1", "u1", "A-101", testNow))

	got, err := db.Counts()
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if diff := cmp.Diff(Counts{Lots: 1, Favorites: 1, Reservations: 1}, got); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

func TestStorageErrorsAreTyped(t *testing.T) {
	db, _ := openTestDB(t)
	db.conn.Close()

	_, err := db.LoadLots()
	if !errs.IsKind(err, errs.KindStorage) {
		t.Errorf("LoadLots() on closed pool kind = %q, want %q", errs.KindOf(err), errs.KindStorage)
	}
	db.conn = nil
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	var s Store = Unavailable{}

	lots, err := s.LoadLotsContext(ctx)
	if err != nil || lots != nil {
		t.Errorf("LoadLotsContext() = (%v, %v), want empty", lots, err)
	}

	if _, _, err := s.ToggleFavoriteContext(ctx, "u1", "1"); !errs.Is(err, errs.ErrStorageUnavailable) {
		t.Errorf("ToggleFavoriteContext() error = %v, want ErrStorageUnavailable", err)
	}
	if _, err := s.ListReservationsContext(ctx, "u1"); !errs.Is(err, errs.ErrStorageUnavailable) {
		t.Errorf("ListReservationsContext() error = %v, want ErrStorageUnavailable", err)
	}
	if err := s.UpsertLotsContext(ctx, nil); !errs.IsKind(err, errs.KindStorage) {
		t.Errorf("UpsertLotsContext() kind = %q, want storage", errs.KindOf(err))
	}
}
