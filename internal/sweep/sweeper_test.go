package sweep

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/numbering"
	"github.com/quotient-app/quotient/internal/templates"
	"github.com/quotient-app/quotient/internal/versioning"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSweepTest(t *testing.T) (*gorm.DB, *lifecycle.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ids, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := lifecycle.NewService(db, ids,
		numbering.New(numbering.NewGormCounterStore(), nil),
		templates.NewResolver(db),
		versioning.NewManager(ids),
		zerolog.Nop(),
	)
	return db, svc
}

func TestRunOnceExpiresOverdueDocuments(t *testing.T) {
	db, svc := setupSweepTest(t)

	acct := models.Account{ID: 1, Email: "owner@test", PasswordHash: "x"}
	client := models.Client{ID: 2, OwnerID: acct.ID, Name: "ClientCo"}
	tpl := models.Template{ID: 3, OwnerID: acct.ID, Name: "Default"}
	for _, rec := range []any{&acct, &client, &tpl} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	qty, _ := decimal.NewFromString("1")
	price, _ := decimal.NewFromString("100")
	doc, err := svc.Create(context.Background(), lifecycle.CreateInput{
		OwnerID: acct.ID, Kind: models.KindQuotation, ClientID: client.ID, TemplateID: tpl.ID,
		Items: []versioning.ItemPatch{{Description: "Work", Quantity: qty, UnitPrice: price}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := db.Model(&models.Document{}).Where("id = ?", doc.ID).Update("valid_until", past).Error; err != nil {
		t.Fatalf("set valid_until: %v", err)
	}
	if _, _, err := svc.Transition(context.Background(), doc.ID, lifecycle.TriggerSend, lifecycle.TransitionMeta{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	s := New(svc, time.Minute, zerolog.Nop())
	n, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	got, err := svc.Get(context.Background(), acct.ID, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != models.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	// A second pass finds nothing to do.
	n, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass expired = %d, want 0", n)
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	_, svc := setupSweepTest(t)
	s := New(svc, 0, zerolog.Nop())
	if s.interval != time.Hour {
		t.Fatalf("interval = %s, want 1h", s.interval)
	}
}
