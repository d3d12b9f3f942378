package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diewo77/go-crudgate/gate"
)

var (
	now     = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	errBoom = errors.New("connection reset by peer")
	allTask = []gate.Task{gate.TaskCreate, gate.TaskInsert, gate.TaskUpdate, gate.TaskRead, gate.TaskDelete, gate.TaskRemove}
)

const tableID = "svc-notes"

// newDirectory returns a directory with one logged-in, active, non-admin
// user "u1" in group "g1" and a "notes" table.
func newDirectory() *gate.StaticDirectory {
	dir := gate.NewStaticDirectory()
	dir.AddSession(gate.Session{UserID: "u1", Token: "tok-1", LoginName: "ann", Expire: now.Add(time.Hour)})
	dir.AddUser(gate.User{ID: "u1", Username: "ann", Email: "ann@example.com", GroupIDs: []string{"g1", "g9"}, IsActive: true})
	dir.AddProfile(gate.Profile{UserID: "u1", GroupID: "g1", IsActive: true})
	dir.AddResource(gate.Resource{ID: tableID, Name: "notes", Category: "table"})
	return dir
}

func creds() gate.Credentials {
	return gate.Credentials{UserID: "u1", Token: "tok-1", LoginName: "ann"}
}

func fixedClock() gate.Option {
	return gate.WithClock(func() time.Time { return now })
}

func newGate(t *testing.T, dir *gate.StaticDirectory) *gate.Gate {
	t.Helper()
	g, err := gate.New(gate.Directories{Sessions: dir, Users: dir, Resources: dir, Grants: dir}, fixedClock())
	require.NoError(t, err)
	require.NoError(t, g.Register("notes", dir))
	return g
}

func newEvaluator(t *testing.T, owners gate.OwnershipCounter) *gate.Evaluator {
	t.Helper()
	ev, err := gate.NewEvaluator(owners, fixedClock())
	require.NoError(t, err)
	return ev
}

func identity(admin bool, grants ...gate.RoleGrant) gate.IdentityContext {
	return gate.IdentityContext{
		Identity: gate.Identity{UserID: "u1", GroupID: "g1", GroupIDs: []string{"g1"}, IsActive: true, IsAdmin: admin},
		Grants:   grants,
		TableID:  tableID,
	}
}

type record struct{ id string }

func (r record) RecordID() string { return r.id }

type failingOwners struct{ err error }

func (f failingOwners) CountOwned(context.Context, []string, string) (int64, error) {
	return 0, f.err
}

type failingSessions struct{ err error }

func (f failingSessions) FindSession(context.Context, string, string, string) (*gate.Session, error) {
	return nil, f.err
}
