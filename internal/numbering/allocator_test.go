package numbering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newFakeStore() *fakeStore { return &fakeStore{counters: map[string]int64{}} }

func (s *fakeStore) Increment(_ context.Context, _ *gorm.DB, ownerID snowflake.ID, kind models.DocumentKind, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s/%d", ownerID, kind, year)
	s.counters[key]++
	return s.counters[key], nil
}

func TestAllocateFormat(t *testing.T) {
	a := New(newFakeStore(), nil)
	at := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	got, err := a.Allocate(context.Background(), nil, 1, models.KindQuotation, at, "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got != "QUO-2025-001" {
		t.Fatalf("first number = %q, want QUO-2025-001", got)
	}
	got, err = a.Allocate(context.Background(), nil, 1, models.KindQuotation, at, "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got != "QUO-2025-002" {
		t.Fatalf("second number = %q, want QUO-2025-002", got)
	}
}

func TestAllocateSequencesAreIndependent(t *testing.T) {
	a := New(newFakeStore(), nil)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		owner snowflake.ID
		kind  models.DocumentKind
		at    time.Time
		want  string
	}{
		{1, models.KindQuotation, at, "QUO-2025-001"},
		{1, models.KindInvoice, at, "INV-2025-001"},
		{2, models.KindQuotation, at, "QUO-2025-001"},
		{1, models.KindQuotation, at.AddDate(1, 0, 0), "QUO-2026-001"},
		{1, models.KindQuotation, at, "QUO-2025-002"},
	}
	for i, tc := range cases {
		got, err := a.Allocate(ctx, nil, tc.owner, tc.kind, tc.at, "")
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != tc.want {
			t.Fatalf("case %d: got %q, want %q", i, got, tc.want)
		}
	}
}

func TestAllocatePrefixOverrides(t *testing.T) {
	a := New(newFakeStore(), map[string]string{"quotation": "DEV"})
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, _ := a.Allocate(context.Background(), nil, 1, models.KindQuotation, at, "")
	if got != "DEV-2025-001" {
		t.Fatalf("configured prefix: got %q, want DEV-2025-001", got)
	}
	got, _ = a.Allocate(context.Background(), nil, 1, models.KindQuotation, at, "ACME")
	if got != "ACME-2025-002" {
		t.Fatalf("per-call override: got %q, want ACME-2025-002", got)
	}
	got, _ = a.Allocate(context.Background(), nil, 1, models.KindInvoice, at, "")
	if got != "INV-2025-001" {
		t.Fatalf("untouched kind keeps default: got %q, want INV-2025-001", got)
	}
}

func TestAllocateConcurrentNumbersAreDistinctAndGapless(t *testing.T) {
	a := New(newFakeStore(), nil)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	const n = 50
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := a.Allocate(context.Background(), nil, 7, models.KindInvoice, at, "")
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for num := range results {
		if seen[num] {
			t.Fatalf("duplicate number allocated: %s", num)
		}
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		want := fmt.Sprintf("INV-2025-%03d", i)
		if !seen[want] {
			t.Fatalf("missing number %s, sequence has a gap", want)
		}
	}
}

func setupCounterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.NumberCounter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGormCounterStoreIncrement(t *testing.T) {
	db := setupCounterDB(t)
	store := NewGormCounterStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, db, 1, models.KindQuotation, 2025)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("increment = %d, want %d", got, want)
		}
	}

	got, err := store.Increment(ctx, db, 1, models.KindQuotation, 2026)
	if err != nil {
		t.Fatalf("increment new year: %v", err)
	}
	if got != 1 {
		t.Fatalf("new year starts at %d, want 1", got)
	}

	var counter models.NumberCounter
	if err := db.First(&counter, "owner_id = ? AND kind = ? AND year = ?", 1, models.KindQuotation, 2025).Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}
	if counter.Value != 3 {
		t.Fatalf("persisted counter = %d, want 3", counter.Value)
	}
}
