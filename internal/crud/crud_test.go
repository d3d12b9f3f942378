package crud_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/auth"
	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/audit"
	"github.com/diewo77/go-crudgate/internal/cache"
	"github.com/diewo77/go-crudgate/internal/crud"
	"github.com/diewo77/go-crudgate/internal/db"
	"github.com/diewo77/go-crudgate/internal/models"
	"github.com/diewo77/go-crudgate/internal/store"
	"github.com/diewo77/go-crudgate/validation"
)

type fixture struct {
	conn    *gorm.DB
	mr      *miniredis.Miniredis
	gate    *gate.Gate
	store   *store.Store[models.Invoice]
	svc     *crud.Service[models.Invoice]
	audit   *audit.Log
	metrics *crud.Metrics

	editor auth.UserInfo
	viewer auth.UserInfo
	admin  auth.UserInfo
}

func newFixture(t *testing.T, opts crud.Options) *fixture {
	t.Helper()
	ctx := context.Background()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	require.NoError(t, db.Seed(ctx, conn))

	account := func(username, group string, admin bool) auth.UserInfo {
		sess, err := db.SeedAccount(ctx, conn, db.Account{
			Username: username,
			Email:    username + "@example.com",
			Group:    group,
			Admin:    admin,
			TTL:      time.Hour,
		})
		require.NoError(t, err)
		return auth.UserInfo{UserID: sess.UserID, Token: sess.Token, LoginName: sess.LoginName}
	}

	mr := miniredis.RunT(t)
	rc, err := cache.Dial(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	g, err := gate.New(store.NewDirectory(conn).Directories())
	require.NoError(t, err)
	invoices, err := store.New[models.Invoice](conn)
	require.NoError(t, err)

	f := &fixture{
		conn:    conn,
		mr:      mr,
		gate:    g,
		store:   invoices,
		audit:   audit.New(conn),
		metrics: crud.NewMetrics(prometheus.NewRegistry()),
		editor:  account("ann", "editor", false),
		viewer:  account("bob", "viewer", false),
		admin:   account("root", "admin", true),
	}
	f.svc, err = crud.New(crud.Params[models.Invoice]{
		Gate:    g,
		Store:   invoices,
		Cache:   rc,
		Audit:   f.audit,
		Metrics: f.metrics,
		Options: opts,
	})
	require.NoError(t, err)
	return f
}

// own inserts invoices owned by owner, bypassing authorization.
func (f *fixture) own(t *testing.T, owner auth.UserInfo, clients ...string) []models.Invoice {
	t.Helper()
	in := make([]models.Invoice, len(clients))
	for i, c := range clients {
		in[i] = models.Invoice{ClientName: c, Status: models.InvoiceStatusDraft, AmountHT: 100}
	}
	out, err := f.store.Create(context.Background(), owner.UserID, in)
	require.NoError(t, err)
	return out
}

func (f *fixture) ops(task gate.Task, outcome string) float64 {
	return testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("invoices", string(task), outcome))
}

func clientNames(invoices []models.Invoice) []string {
	out := make([]string, len(invoices))
	for i, inv := range invoices {
		out[i] = inv.ClientName
	}
	return out
}

func TestNew_RequiresGateAndStore(t *testing.T) {
	_, err := crud.New(crud.Params[models.Invoice]{})
	require.ErrorIs(t, err, gate.ErrValidation)
}

func TestService_CreateAndGet(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()

	created, err := f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records: []models.Invoice{
			{ClientName: "ACME", AmountHT: 100, VATRate: 0.2},
			{ClientName: "Globex", AmountHT: 50, VATRate: 0.2},
		},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, inv := range created {
		assert.NotEmpty(t, inv.ID)
		assert.Equal(t, f.editor.UserID, inv.CreatedBy)
	}

	got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ACME", "Globex"}, clientNames(got))

	entries, err := f.audit.List(ctx, "invoices", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1, "reads are not audited by default")
	assert.Equal(t, models.LogCreate, entries[0].LogType)
	assert.Equal(t, f.editor.UserID, entries[0].LogBy)

	assert.Equal(t, 1.0, f.ops(gate.TaskCreate, "ok"))
	assert.Equal(t, 1.0, f.ops(gate.TaskRead, "ok"))
}

func TestService_ViewerCannotCreate(t *testing.T) {
	f := newFixture(t, crud.Options{})

	_, err := f.svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{
		UserInfo: f.viewer,
		Records:  []models.Invoice{{ClientName: "ACME", AmountHT: 1}},
	})
	require.ErrorIs(t, err, gate.ErrUnauthorized)
	assert.Equal(t, gate.MsgNotAuthorized, err.Error())

	var n int64
	require.NoError(t, f.conn.Model(&models.Invoice{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, f.ops(gate.TaskCreate, "unauthorized"))
}

func TestService_GetEmptyIsNotFound(t *testing.T) {
	f := newFixture(t, crud.Options{})

	_, err := f.svc.Get(context.Background(), crud.GetRequest{UserInfo: f.viewer})
	require.ErrorIs(t, err, gate.ErrNotFound)
	assert.Equal(t, 1.0, f.ops(gate.TaskRead, "notFound"))
}

func TestService_GetByIDs(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	inv := f.own(t, f.editor, "ACME", "Globex")

	got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer, IDs: []string{inv[1].ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Globex", got[0].ClientName)

	_, err = f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer, IDs: []string{"ghost"}})
	require.ErrorIs(t, err, gate.ErrNotFound)
}

func TestService_GetCachesResultsButAuthorizesEveryCall(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	f.own(t, f.editor, "ACME")

	_, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheMissesTotal.WithLabelValues("invoices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHitsTotal.WithLabelValues("invoices")))
	assert.True(t, f.mr.Exists("crudgate:invoices"))

	require.NoError(t, f.conn.Where("user_id = ?", f.viewer.UserID).Delete(&models.Session{}).Error)
	_, err = f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.ErrorIs(t, err, gate.ErrUnauthorized)
	assert.Equal(t, gate.MsgNotLoggedIn, err.Error())
}

func TestService_WriteInvalidatesCache(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	f.own(t, f.editor, "ACME")

	_, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	require.True(t, f.mr.Exists("crudgate:invoices"))

	_, err = f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records:  []models.Invoice{{ClientName: "Globex", AmountHT: 1}},
	})
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("crudgate:invoices"))

	got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestService_CacheDownFallsBackToStore(t *testing.T) {
	f := newFixture(t, crud.Options{})
	f.own(t, f.editor, "ACME")
	f.mr.Close()

	got, err := f.svc.Get(context.Background(), crud.GetRequest{UserInfo: f.viewer})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_Update(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	inv := f.own(t, f.admin, "ACME")[0]

	inv.ClientName = "ACME Corp"
	inv.CreatedBy = "someone-else"
	updated, err := f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{UserInfo: f.editor, Records: []models.Invoice{inv}})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "ACME Corp", updated[0].ClientName)
	assert.Equal(t, f.admin.UserID, updated[0].CreatedBy, "owner is never rewritten")
	assert.Equal(t, f.editor.UserID, updated[0].UpdatedBy)

	entries, err := f.audit.List(ctx, "invoices", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogUpdate, entries[0].LogType)
	assert.Contains(t, string(entries[0].Records), `"ACME"`)
	assert.Contains(t, string(entries[0].NewRecords), `"ACME Corp"`)

	_, err = f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{UserInfo: f.viewer, Records: []models.Invoice{inv}})
	require.ErrorIs(t, err, gate.ErrUnauthorized)
}

func TestService_OwnerMayUpdateWithoutGrant(t *testing.T) {
	f := newFixture(t, crud.Options{})
	inv := f.own(t, f.viewer, "Mine")[0]

	inv.AmountHT = 42
	updated, err := f.svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{UserInfo: f.viewer, Records: []models.Invoice{inv}})
	require.NoError(t, err)
	assert.Equal(t, 42.0, updated[0].AmountHT)
}

func TestService_UpdateMissingRecords(t *testing.T) {
	f := newFixture(t, crud.Options{})
	inv := f.own(t, f.editor, "ACME")[0]

	ghost := models.Invoice{Base: models.Base{ID: "ghost"}, ClientName: "Nobody"}
	_, err := f.svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records:  []models.Invoice{inv, ghost},
	})
	require.ErrorIs(t, err, gate.ErrNotFound)
	assert.EqualError(t, err, "only 1 out of 2 record(s) found")
}

func TestService_SaveRejectsMixedBatch(t *testing.T) {
	f := newFixture(t, crud.Options{})
	inv := f.own(t, f.editor, "ACME")[0]

	_, err := f.svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records:  []models.Invoice{inv, {ClientName: "New"}},
	})
	require.ErrorIs(t, err, gate.ErrValidation)
}

func TestService_SaveRunsValidator(t *testing.T) {
	f := newFixture(t, crud.Options{})

	_, err := f.svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records:  []models.Invoice{{ClientName: "ACME", AmountHT: -5}},
		Validate: validation.Invoice,
	})
	require.ErrorIs(t, err, gate.ErrValidation)
	assert.Contains(t, err.Error(), "amount_ht=must_be_positive")

	var n int64
	require.NoError(t, f.conn.Model(&models.Invoice{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestService_UpdateByFilter(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	f.own(t, f.admin, "ACME", "ACME", "Globex")

	updated, err := f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Filter:   map[string]any{"client_name": "ACME"},
		Changes:  map[string]any{"status": models.InvoiceStatusFinal},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for _, inv := range updated {
		assert.Equal(t, models.InvoiceStatusFinal, inv.Status)
	}

	var globex models.Invoice
	require.NoError(t, f.conn.Where("client_name = ?", "Globex").First(&globex).Error)
	assert.Equal(t, models.InvoiceStatusDraft, globex.Status)

	_, err = f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Filter:   map[string]any{"client_name": "ACME"},
		Changes:  map[string]any{"created_by": f.editor.UserID},
	})
	require.ErrorIs(t, err, gate.ErrValidation)

	_, err = f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
		UserInfo: f.viewer,
		Filter:   map[string]any{"client_name": "ACME"},
		Changes:  map[string]any{"status": models.InvoiceStatusPaid},
	})
	require.ErrorIs(t, err, gate.ErrUnauthorized)

	_, err = f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{UserInfo: f.editor})
	require.ErrorIs(t, err, gate.ErrValidation)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	mine := f.own(t, f.editor, "Mine")[0]
	theirs := f.own(t, f.admin, "Theirs")[0]

	deleted, err := f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.editor, IDs: []string{mine.ID}})
	require.NoError(t, err, "owner may delete without a delete grant")
	require.Len(t, deleted, 1)
	assert.Equal(t, mine.ID, deleted[0].ID)

	_, err = f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.editor, IDs: []string{theirs.ID}})
	require.ErrorIs(t, err, gate.ErrUnauthorized)

	_, err = f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.editor})
	require.ErrorIs(t, err, gate.ErrValidation)

	entries, err := f.audit.List(ctx, "invoices", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogDelete, entries[0].LogType)
	assert.Equal(t, 1.0, f.ops(gate.TaskDelete, "ok"))
	assert.Equal(t, 1.0, f.ops(gate.TaskDelete, "unauthorized"))
	assert.Equal(t, 1.0, f.ops(gate.TaskDelete, "validateError"))
}

func TestService_DeleteByFilter(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	f.own(t, f.editor, "ACME", "ACME", "Globex")

	deleted, err := f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.admin, Filter: map[string]any{"client_name": "ACME"}})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	var n int64
	require.NoError(t, f.conn.Model(&models.Invoice{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.admin, Filter: map[string]any{"client_name": "ACME"}})
	require.ErrorIs(t, err, gate.ErrNotFound)
}

func TestService_BulkWriteNeedsFilter(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	f.own(t, f.editor, "ACME", "Globex")

	for _, filter := range []map[string]any{nil, {}} {
		_, err := f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
			UserInfo: f.admin,
			Filter:   filter,
			Changes:  map[string]any{"status": models.InvoiceStatusCancelled},
		})
		require.ErrorIs(t, err, gate.ErrValidation)

		_, err = f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.admin, Filter: filter})
		require.ErrorIs(t, err, gate.ErrValidation)
	}

	var invoices []models.Invoice
	require.NoError(t, f.conn.Find(&invoices).Error)
	require.Len(t, invoices, 2)
	for _, inv := range invoices {
		assert.Equal(t, models.InvoiceStatusDraft, inv.Status)
	}
	assert.Zero(t, f.ops(gate.TaskUpdate, "ok"))
	assert.Zero(t, f.ops(gate.TaskDelete, "ok"))
}

func TestService_BulkWriteRejectsIDFilter(t *testing.T) {
	f := newFixture(t, crud.Options{})
	ctx := context.Background()
	owned := f.own(t, f.admin, "ACME")

	for _, key := range []string{"id", "ID"} {
		_, err := f.svc.Save(ctx, crud.SaveRequest[models.Invoice]{
			UserInfo: f.editor,
			Filter:   map[string]any{key: owned[0].ID},
			Changes:  map[string]any{"status": models.InvoiceStatusFinal},
		})
		require.ErrorIs(t, err, gate.ErrValidation, key)

		_, err = f.svc.Delete(ctx, crud.DeleteRequest{UserInfo: f.editor, Filter: map[string]any{key: owned[0].ID}})
		require.ErrorIs(t, err, gate.ErrValidation, key)
	}

	got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.admin, IDs: []string{owned[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, got[0].Status)
}

func TestService_IdentityFromContext(t *testing.T) {
	f := newFixture(t, crud.Options{})
	f.own(t, f.editor, "ACME")

	ctx := auth.WithUserInfo(context.Background(), f.viewer)
	got, err := f.svc.Get(ctx, crud.GetRequest{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.Get(context.Background(), crud.GetRequest{})
	require.ErrorIs(t, err, gate.ErrValidation)
	assert.Equal(t, gate.MsgInvalidIdentity, err.Error())
}

func TestService_ClampsLimit(t *testing.T) {
	opts := crud.DefaultOptions()
	opts.MaxQueryLimit = 2
	f := newFixture(t, opts)
	ctx := context.Background()
	f.own(t, f.editor, "A")
	f.own(t, f.editor, "B")
	f.own(t, f.editor, "C")

	for _, limit := range []int{0, 10} {
		got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer, Limit: limit, Skip: -3})
		require.NoError(t, err)
		assert.Len(t, got, 2, "limit %d", limit)
	}

	got, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer, Limit: 1, Skip: 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_UnknownFilterField(t *testing.T) {
	f := newFixture(t, crud.Options{})
	f.own(t, f.editor, "ACME")

	_, err := f.svc.Get(context.Background(), crud.GetRequest{UserInfo: f.viewer, Filter: map[string]any{"password": "x"}})
	require.ErrorIs(t, err, gate.ErrValidation)
	assert.ErrorIs(t, err, store.ErrUnknownField)
}

type brokenAudit struct{ calls int }

func (b *brokenAudit) Record(context.Context, audit.Entry) error {
	b.calls++
	return errors.New("audit table gone")
}

func TestService_AuditFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t, crud.Options{})
	logger, hook := logtest.NewNullLogger()
	rec := &brokenAudit{}
	svc, err := crud.New(crud.Params[models.Invoice]{
		Gate:   f.gate,
		Store:  f.store,
		Audit:  rec,
		Logger: logger,
	})
	require.NoError(t, err)

	created, err := svc.Save(context.Background(), crud.SaveRequest[models.Invoice]{
		UserInfo: f.editor,
		Records:  []models.Invoice{{ClientName: "ACME", AmountHT: 10}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 1, rec.calls)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, string(models.LogCreate), entry.Data["log_type"])
}

func TestService_ReadAudit(t *testing.T) {
	opts := crud.DefaultOptions()
	opts.LogRead = true
	opts.LogCreate = false
	f := newFixture(t, opts)
	ctx := context.Background()
	f.own(t, f.editor, "ACME")

	_, err := f.svc.Get(ctx, crud.GetRequest{UserInfo: f.viewer, Limit: 5})
	require.NoError(t, err)

	entries, err := f.audit.List(ctx, "invoices", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogRead, entries[0].LogType)
	assert.Equal(t, f.viewer.UserID, entries[0].LogBy)
	assert.JSONEq(t, `{"table":"invoices","skip":0,"limit":5}`, string(entries[0].Records))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", crud.Outcome(nil))
	assert.Equal(t, "tokenExpired", crud.Outcome(gate.NewError(gate.KindTokenExpired, "", nil)))
	assert.Equal(t, "error", crud.Outcome(fmt.Errorf("%w: boom", crud.ErrInsert)))
}
