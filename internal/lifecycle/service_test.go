package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/quotient-app/quotient/internal/numbering"
	"github.com/quotient-app/quotient/internal/templates"
	"github.com/quotient-app/quotient/internal/versioning"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTest(t *testing.T) (*gorm.DB, *Service) {
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
	ids, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(db,
		ids,
		numbering.New(numbering.NewGormCounterStore(), nil),
		templates.NewResolver(db),
		versioning.NewManager(ids),
		zerolog.Nop(),
	)
	return db, svc
}

func seedAccount(t *testing.T, db *gorm.DB, prefixes datatypes.JSONMap) models.Account {
	t.Helper()
	acct := models.Account{
		ID: snowflake.ID(time.Now().UnixNano()), Email: fmt.Sprintf("%s@test", t.Name()),
		PasswordHash: "x", CompanyName: "Acme GmbH", City: "Berlin",
		NumberPrefixes: prefixes,
	}
	if err := db.Create(&acct).Error; err != nil {
		t.Fatalf("account: %v", err)
	}
	return acct
}

func seedClient(t *testing.T, db *gorm.DB, ownerID snowflake.ID) models.Client {
	t.Helper()
	client := models.Client{ID: snowflake.ID(time.Now().UnixNano() + 1), OwnerID: ownerID, Name: "ClientCo", Email: "billing@clientco.test"}
	if err := db.Create(&client).Error; err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func seedTemplate(t *testing.T, db *gorm.DB, ownerID snowflake.ID) models.Template {
	t.Helper()
	tpl := models.Template{
		ID: snowflake.ID(time.Now().UnixNano() + 2), OwnerID: ownerID, Name: "Default",
		PageSize: "A4", Orientation: "portrait", AccentColor: "#1f2937", FontFamily: "Helvetica",
		Sections: []models.TemplateSection{
			{ID: snowflake.ID(time.Now().UnixNano() + 3), Type: models.SectionHeader, Position: 1},
			{ID: snowflake.ID(time.Now().UnixNano() + 4), Type: models.SectionItems, Position: 2},
			{ID: snowflake.ID(time.Now().UnixNano() + 5), Type: models.SectionTotals, Position: 3},
		},
	}
	if err := db.Create(&tpl).Error; err != nil {
		t.Fatalf("template: %v", err)
	}
	return tpl
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func createDoc(t *testing.T, svc *Service, acct models.Account, client models.Client, tpl models.Template, kind models.DocumentKind) *models.Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), CreateInput{
		OwnerID: acct.ID, Kind: kind, ClientID: client.ID, TemplateID: tpl.ID,
		Currency: "EUR", Subject: "Website redesign",
		Items: []versioning.ItemPatch{
			{Description: "Design", Quantity: dec("2"), UnitPrice: dec("100")},
			{Description: "Hosting", Quantity: dec("1"), UnitPrice: dec("50")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc
}

func TestCreateAllocatesSequentialNumbers(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)

	year := time.Now().Year()
	first := createDoc(t, svc, acct, client, tpl, models.KindQuotation)
	if want := fmt.Sprintf("QUO-%d-001", year); first.DocumentNumber != want {
		t.Fatalf("number = %q, want %q", first.DocumentNumber, want)
	}
	if first.Status != models.StatusDraft || first.Version != 1 {
		t.Fatalf("new document: status=%s version=%d, want draft/1", first.Status, first.Version)
	}
	if first.ShareToken == "" {
		t.Fatal("share token not set")
	}
	if first.Client.Name != "ClientCo" {
		t.Fatalf("client snapshot name = %q", first.Client.Name)
	}
	if got := first.Totals.Total; !got.Equal(dec("250")) {
		t.Fatalf("total = %s, want 250", got)
	}

	second := createDoc(t, svc, acct, client, tpl, models.KindQuotation)
	if want := fmt.Sprintf("QUO-%d-002", year); second.DocumentNumber != want {
		t.Fatalf("number = %q, want %q", second.DocumentNumber, want)
	}
	invoice := createDoc(t, svc, acct, client, tpl, models.KindInvoice)
	if want := fmt.Sprintf("INV-%d-001", year); invoice.DocumentNumber != want {
		t.Fatalf("invoice keeps its own sequence: %q, want %q", invoice.DocumentNumber, want)
	}
}

func TestCreateSequencesAreScopedPerOwner(t *testing.T) {
	db, svc := setupServiceTest(t)
	first := seedAccount(t, db, nil)
	second := models.Account{ID: first.ID + 5000, Email: "second@test", PasswordHash: "x", CompanyName: "Beta Ltd"}
	if err := db.Create(&second).Error; err != nil {
		t.Fatalf("second account: %v", err)
	}
	firstClient := seedClient(t, db, first.ID)
	secondClient := models.Client{ID: firstClient.ID + 5000, OwnerID: second.ID, Name: "OtherCo"}
	if err := db.Create(&secondClient).Error; err != nil {
		t.Fatalf("second client: %v", err)
	}
	firstTpl := seedTemplate(t, db, first.ID)
	secondTpl := models.Template{ID: firstTpl.ID + 5000, OwnerID: second.ID, Name: "Default"}
	if err := db.Create(&secondTpl).Error; err != nil {
		t.Fatalf("second template: %v", err)
	}

	want := fmt.Sprintf("QUO-%d-001", time.Now().Year())
	docA := createDoc(t, svc, first, firstClient, firstTpl, models.KindQuotation)
	if docA.DocumentNumber != want {
		t.Fatalf("first owner number = %q, want %q", docA.DocumentNumber, want)
	}
	// The second owner starts their own sequence at 001; the shared number
	// string must not collide across owners.
	docB, err := svc.Create(context.Background(), CreateInput{
		OwnerID: second.ID, Kind: models.KindQuotation, ClientID: secondClient.ID, TemplateID: secondTpl.ID,
		Items: []versioning.ItemPatch{{Description: "Work", Quantity: dec("1"), UnitPrice: dec("100")}},
	})
	if err != nil {
		t.Fatalf("second owner create: %v", err)
	}
	if docB.DocumentNumber != want {
		t.Fatalf("second owner number = %q, want %q", docB.DocumentNumber, want)
	}

	next := createDoc(t, svc, first, firstClient, firstTpl, models.KindQuotation)
	if wantNext := fmt.Sprintf("QUO-%d-002", time.Now().Year()); next.DocumentNumber != wantNext {
		t.Fatalf("first owner second number = %q, want %q", next.DocumentNumber, wantNext)
	}
}

func TestCreateUsesAccountPrefixOverride(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, datatypes.JSONMap{"quotation": "DEV"})
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)

	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)
	if want := fmt.Sprintf("DEV-%d-001", time.Now().Year()); doc.DocumentNumber != want {
		t.Fatalf("number = %q, want %q", doc.DocumentNumber, want)
	}
}

func TestCreateRejectsForeignClient(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	other := models.Account{ID: acct.ID + 1000, Email: "other@test", PasswordHash: "x"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("other account: %v", err)
	}
	client := seedClient(t, db, other.ID)
	tpl := seedTemplate(t, db, acct.ID)

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID: acct.ID, Kind: models.KindQuotation, ClientID: client.ID, TemplateID: tpl.ID,
		Items: []versioning.ItemPatch{{Description: "x", Quantity: dec("1"), UnitPrice: dec("1")}},
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestReviseVersionedPreservesSnapshots(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	subject := "Revised scope"
	updated, err := svc.Revise(context.Background(), acct.ID, doc.ID, versioning.Patch{
		Subject: &subject,
		Items: []versioning.ItemPatch{
			{Description: "Design", Quantity: dec("3"), UnitPrice: dec("100")},
		},
	}, true)
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
	if updated.Subject != subject {
		t.Fatalf("subject = %q", updated.Subject)
	}
	if !updated.Totals.Total.Equal(dec("300")) {
		t.Fatalf("total = %s, want 300", updated.Totals.Total)
	}

	snaps, err := versioning.Snapshots(context.Background(), db, doc.ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	var frozen models.Document
	if err := json.Unmarshal(snaps[0].Body, &frozen); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if frozen.Version != 1 || frozen.Subject != "Website redesign" {
		t.Fatalf("snapshot holds version=%d subject=%q, want pre-revision state", frozen.Version, frozen.Subject)
	}
	if snaps[0].Version != 1 {
		t.Fatalf("snapshot version = %d, want 1", snaps[0].Version)
	}

	// A second versioned revise keeps version == snapshots + 1.
	notes := "net 30"
	updated, err = svc.Revise(context.Background(), acct.ID, doc.ID, versioning.Patch{Notes: &notes}, true)
	if err != nil {
		t.Fatalf("second revise: %v", err)
	}
	snaps, _ = versioning.Snapshots(context.Background(), db, doc.ID)
	if updated.Version != len(snaps)+1 {
		t.Fatalf("version %d != snapshots+1 (%d)", updated.Version, len(snaps)+1)
	}
}

func TestReviseUnversionedKeepsVersion(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindProposal)

	notes := "typo fix"
	updated, err := svc.Revise(context.Background(), acct.ID, doc.ID, versioning.Patch{Notes: &notes}, false)
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("version = %d, want 1", updated.Version)
	}
	snaps, _ := versioning.Snapshots(context.Background(), db, doc.ID)
	if len(snaps) != 0 {
		t.Fatalf("snapshots = %d, want 0", len(snaps))
	}
}

func TestReviseRejectedAfterSend(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	if _, _, err := svc.Transition(context.Background(), doc.ID, TriggerSend, TransitionMeta{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	notes := "too late"
	_, err := svc.Revise(context.Background(), acct.ID, doc.ID, versioning.Patch{Notes: &notes}, false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionSendRecordsHistory(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	updated, effects, err := svc.Transition(context.Background(), doc.ID, TriggerSend, TransitionMeta{Recipient: "billing@clientco.test"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if updated.Status != models.StatusSent {
		t.Fatalf("status = %s, want sent", updated.Status)
	}
	if updated.IssuedAt == nil {
		t.Fatal("issued_at not set on first send")
	}
	if len(effects) != 1 || effects[0] != EffectRecordEmail {
		t.Fatalf("effects = %v", effects)
	}
	var events []models.EmailEvent
	if err := db.Where("document_id = ?", doc.ID).Order("id asc").Find(&events).Error; err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Recipient != "billing@clientco.test" || events[0].Outcome != "sent" {
		t.Fatalf("email history = %+v", events)
	}

	// Resend appends a second entry and keeps issued_at.
	issued := *updated.IssuedAt
	updated, _, err = svc.Transition(context.Background(), doc.ID, TriggerSend, TransitionMeta{})
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !updated.IssuedAt.Equal(issued) {
		t.Fatal("issued_at changed on resend")
	}
	db.Where("document_id = ?", doc.ID).Order("id asc").Find(&events)
	if len(events) != 2 {
		t.Fatalf("email history after resend = %d entries, want 2", len(events))
	}
	if events[1].Recipient != "billing@clientco.test" {
		t.Fatalf("resend recipient defaults to client email, got %q", events[1].Recipient)
	}
}

func TestTransitionViewAndDecision(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	if _, _, err := svc.Transition(context.Background(), doc.ID, TriggerSend, TransitionMeta{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	viewed, _, err := svc.Transition(context.Background(), doc.ID, TriggerView, TransitionMeta{RemoteAddr: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if viewed.Status != models.StatusViewed {
		t.Fatalf("status = %s, want viewed", viewed.Status)
	}
	var views []models.ViewEvent
	db.Where("document_id = ?", doc.ID).Find(&views)
	if len(views) != 1 || views[0].RemoteAddr != "10.0.0.1" {
		t.Fatalf("view history = %+v", views)
	}

	approved, _, err := svc.Transition(context.Background(), doc.ID, TriggerApprove, TransitionMeta{})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.StatusApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}

	// Paying a quotation is illegal and leaves the status untouched.
	if _, _, err := svc.Transition(context.Background(), doc.ID, TriggerPay, TransitionMeta{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pay quotation: err = %v, want ErrInvalidTransition", err)
	}
	reloaded, _ := svc.Get(context.Background(), acct.ID, doc.ID)
	if reloaded.Status != models.StatusApproved {
		t.Fatalf("status changed to %s after illegal trigger", reloaded.Status)
	}
}

func TestGetByTokenAndAccessControl(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindContract)

	byToken, err := svc.GetByToken(context.Background(), doc.ShareToken)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != doc.ID {
		t.Fatalf("wrong document via token")
	}
	if _, err := svc.GetByToken(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(context.Background(), acct.ID+1, doc.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("foreign owner: err = %v, want ErrAccessDenied", err)
	}
}

func TestRenderForOutput(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)
	doc := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	artifact, warnings, err := svc.RenderForOutput(context.Background(), acct.ID, doc.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings on a freshly computed document: %v", warnings)
	}
	if artifact.Attrs["number"] != doc.DocumentNumber {
		t.Fatalf("artifact number = %q", artifact.Attrs["number"])
	}
	if len(artifact.Children) != 3 {
		t.Fatalf("sections rendered = %d, want 3", len(artifact.Children))
	}
}

func TestExpireDue(t *testing.T) {
	db, svc := setupServiceTest(t)
	acct := seedAccount(t, db, nil)
	client := seedClient(t, db, acct.ID)
	tpl := seedTemplate(t, db, acct.ID)

	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	overdue := createDoc(t, svc, acct, client, tpl, models.KindQuotation)
	fresh := createDoc(t, svc, acct, client, tpl, models.KindQuotation)
	draft := createDoc(t, svc, acct, client, tpl, models.KindQuotation)

	for id, until := range map[snowflake.ID]time.Time{overdue.ID: past, fresh.ID: future, draft.ID: past} {
		if err := db.Model(&models.Document{}).Where("id = ?", id).Update("valid_until", until).Error; err != nil {
			t.Fatalf("set valid_until: %v", err)
		}
	}
	for _, id := range []snowflake.ID{overdue.ID, fresh.ID} {
		if _, _, err := svc.Transition(context.Background(), id, TriggerSend, TransitionMeta{}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	n, err := svc.ExpireDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	got, _ := svc.Get(context.Background(), acct.ID, overdue.ID)
	if got.Status != models.StatusExpired {
		t.Fatalf("overdue status = %s, want expired", got.Status)
	}
	got, _ = svc.Get(context.Background(), acct.ID, fresh.ID)
	if got.Status != models.StatusSent {
		t.Fatalf("fresh status = %s, want sent", got.Status)
	}
	got, _ = svc.Get(context.Background(), acct.ID, draft.ID)
	if got.Status != models.StatusDraft {
		t.Fatalf("draft status = %s, want draft", got.Status)
	}
}
