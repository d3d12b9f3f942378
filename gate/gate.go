// Package gate decides whether a logged-in user may create, read, update or
// delete records of a resource.
//
// A decision combines:
//   - session validity and expiry
//   - active user and profile records
//   - group grants on the whole resource (collection scope)
//   - group grants on individual records (record scope)
//   - ownership of the targeted records
//   - admin bypass
//
// The package has no storage dependencies. Callers plug in directories
// (see SessionGateway, UserDirectory, ResourceDirectory, GrantDirectory) and
// register one OwnershipCounter per resource.
package gate

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Directories bundles the lookups the gate needs for identity resolution.
type Directories struct {
	Sessions  SessionGateway
	Users     UserDirectory
	Resources ResourceDirectory
	Grants    GrantDirectory
}

// Request is one authorization question.
type Request struct {
	Task        Task
	Credentials Credentials
	Resource    string
	RecordIDs   []string
}

// Gate is the central authorization checkpoint.
// Register a record store per resource name, then call Authorize.
// A Gate is safe for concurrent use.
type Gate struct {
	resolver   *Resolver
	opts       []Option
	cfg        Config
	mu         sync.RWMutex
	evaluators map[string]*Evaluator
}

// New creates a gate over the given directories.
func New(d Directories, opts ...Option) (*Gate, error) {
	resolver, err := NewResolver(d.Sessions, d.Users, d.Resources, d.Grants, opts...)
	if err != nil {
		return nil, err
	}
	return &Gate{
		resolver:   resolver,
		opts:       opts,
		cfg:        newConfig(opts),
		evaluators: make(map[string]*Evaluator),
	}, nil
}

// Register binds the ownership counter of a resource's record store.
// Overwrites any existing registration for that resource.
func (g *Gate) Register(resource string, owners OwnershipCounter) error {
	ev, err := NewEvaluator(owners, g.opts...)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.evaluators[resource] = ev
	g.mu.Unlock()
	return nil
}

func (g *Gate) evaluator(resource string) (*Evaluator, error) {
	g.mu.RLock()
	ev, ok := g.evaluators[resource]
	g.mu.RUnlock()
	if !ok {
		return nil, NewError(KindValidation, MsgNoRecordStore, nil)
	}
	return ev, nil
}

// Authorize resolves the caller and evaluates req.Task on req.Resource and
// req.RecordIDs. It returns an allowing Verdict or an *AuthError.
func (g *Gate) Authorize(ctx context.Context, req Request) (Verdict, error) {
	if !req.Task.Valid() {
		return Verdict{}, unauthorized(MsgUnknownTask, nil)
	}
	ev, err := g.evaluator(req.Resource)
	if err != nil {
		return Verdict{}, err
	}
	ic, err := g.resolver.ResolveIdentity(ctx, req.Credentials, req.Resource, req.RecordIDs)
	if err != nil {
		g.logDecision(req, err)
		return Verdict{}, err
	}
	v, err := ev.EvaluateTask(ctx, req.Task, ic, req.RecordIDs)
	g.logDecision(req, err)
	return v, err
}

// AuthorizeResultSet authorizes task on records previously fetched by a
// filter. An empty batch is KindNotFound and no lookup is made.
func (g *Gate) AuthorizeResultSet(ctx context.Context, task Task, creds Credentials, resource string, records []Identifiable) (Verdict, error) {
	ids := idsOf(records)
	if len(ids) == 0 {
		return Verdict{}, NewError(KindNotFound, MsgMissingRecords, nil)
	}
	return g.Authorize(ctx, Request{Task: task, Credentials: creds, Resource: resource, RecordIDs: ids})
}

// CheckLoginStatus verifies that creds belong to a live session of an
// active account.
func (g *Gate) CheckLoginStatus(ctx context.Context, creds Credentials) (Identity, error) {
	return g.resolver.CheckLoginStatus(ctx, creds)
}

// Can is a convenience wrapper returning bool instead of an error.
func (g *Gate) Can(ctx context.Context, req Request) bool {
	_, err := g.Authorize(ctx, req)
	return err == nil
}

func (g *Gate) logDecision(req Request, err error) {
	entry := g.cfg.Logger.WithFields(logrus.Fields{
		"user_id":  req.Credentials.UserID,
		"resource": req.Resource,
		"task":     string(req.Task),
		"records":  len(req.RecordIDs),
	})
	if err != nil {
		entry.WithField("kind", KindOf(err).String()).Info("access denied")
		return
	}
	entry.Debug("access granted")
}
