package gate

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Evaluator decides whether a resolved identity may perform a task.
// It holds no mutable state; the only I/O is the ownership count.
//
// A task is allowed when any of the following holds:
//  1. the identity is an admin
//  2. the identity created every targeted record
//  3. every collection grant on the table allows the task
//  4. every targeted record has at least one record grant allowing the task
//
// Ownership is computed before the "no grants" short-circuit, so an owner
// without grants is still allowed.
type Evaluator struct {
	owners OwnershipCounter
	cfg    Config
}

// NewEvaluator creates an evaluator backed by the record store's ownership counter.
func NewEvaluator(owners OwnershipCounter, opts ...Option) (*Evaluator, error) {
	if owners == nil {
		return nil, NewError(KindValidation, MsgNoRecordStore, nil)
	}
	return &Evaluator{owners: owners, cfg: newConfig(opts)}, nil
}

// EvaluateTask returns an allowing Verdict or a KindUnauthorized error.
// recordIDs may be empty, e.g. for creates.
func (e *Evaluator) EvaluateTask(ctx context.Context, task Task, ic IdentityContext, recordIDs []string) (Verdict, error) {
	log := e.cfg.Logger.WithFields(logrus.Fields{"user_id": ic.UserID, "task": string(task), "table_id": ic.TableID})

	action := task.Action()
	if action == ActionNone {
		log.Debug("unknown task type")
		return Verdict{}, unauthorized(MsgUnknownTask, nil)
	}
	if !ic.IsActive {
		return Verdict{}, unauthorized(MsgAccountInactive, nil)
	}

	ids := uniqueIDs(recordIDs)
	ownerPermitted := false
	if len(ids) > 0 && ic.UserID != "" {
		n, err := e.owners.CountOwned(ctx, ids, ic.UserID)
		if err != nil {
			log.WithError(err).Warn("ownership lookup failed")
			return Verdict{}, unauthorized(MsgNotAuthorized, err)
		}
		ownerPermitted = n == int64(len(ids))
	}

	if !ic.IsAdmin && !ownerPermitted && len(ic.Grants) == 0 {
		log.Debug("denied: no grants")
		return Verdict{}, denied()
	}

	var collectionOK, recordOK bool
	if !ic.IsAdmin && len(ic.Grants) > 0 {
		collection, record := partitionGrants(ic.Grants, ic.TableID, ids)
		collectionOK = collectionPermitted(collection, action)
		if task.RecordScoped() {
			recordOK = recordPermitted(record, ids, action)
		}
	}

	if recordOK || collectionOK || ownerPermitted || ic.IsAdmin {
		return allow(ic.Identity), nil
	}
	log.Debug("denied: grants insufficient")
	return Verdict{}, denied()
}

// EvaluateTaskForResultSet authorizes a task against records fetched by a
// filter. An empty batch is KindNotFound: there is nothing to authorize.
// ic should have been resolved with the ids of records.
func (e *Evaluator) EvaluateTaskForResultSet(ctx context.Context, task Task, ic IdentityContext, records []Identifiable) (Verdict, error) {
	ids := idsOf(records)
	if len(ids) == 0 {
		return Verdict{}, NewError(KindNotFound, MsgMissingRecords, nil)
	}
	return e.EvaluateTask(ctx, task, ic, ids)
}

func idsOf(records []Identifiable) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		ids = append(ids, r.RecordID())
	}
	return uniqueIDs(ids)
}
