// Package crud runs gated record operations: every read and write is
// authorized by the gate first, then performed on the store, followed by
// cache invalidation and an audit entry.
package crud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/go-crudgate/auth"
	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/audit"
	"github.com/diewo77/go-crudgate/internal/cache"
	"github.com/diewo77/go-crudgate/internal/models"
	"github.com/diewo77/go-crudgate/internal/store"
	"github.com/diewo77/go-crudgate/validation"
)

// Store failures are wrapped with one of these.
var (
	ErrInsert = errors.New("error inserting record(s)")
	ErrUpdate = errors.New("error updating record(s)")
	ErrRemove = errors.New("error removing record(s)")
	ErrRead   = errors.New("error reading record(s)")
)

const (
	msgNoSaveTarget   = "records, or a query with changes, are required"
	msgNoDeleteTarget = "ids or a query are required"
	msgMixedSave      = "cannot create and update records in the same request"
	msgFilterByID     = "filter on id is not allowed, pass ids instead"
)

// Options are the service defaults. Limit applies when a read gives none;
// MaxQueryLimit caps any read.
type Options struct {
	Limit         int
	MaxQueryLimit int
	CacheExpire   time.Duration
	LogCreate     bool
	LogUpdate     bool
	LogRead       bool
	LogDelete     bool
}

// DefaultOptions returns the defaults used when Params.Options is zero.
func DefaultOptions() Options {
	return Options{
		Limit:         100000,
		MaxQueryLimit: 100000,
		CacheExpire:   300 * time.Second,
		LogCreate:     true,
		LogUpdate:     true,
		LogDelete:     true,
	}
}

// Params configures a Service. Gate and Store are required. Table is the
// gate resource name and defaults to the store's table.
type Params[T store.Record] struct {
	Table   string
	Gate    *gate.Gate
	Store   *store.Store[T]
	Cache   cache.Cache
	Audit   audit.Recorder
	Logger  logrus.FieldLogger
	Metrics *Metrics
	Options Options
}

// Service is the gated CRUD entry point for one model.
type Service[T store.Record] struct {
	table   string
	gate    *gate.Gate
	store   *store.Store[T]
	cache   cache.Cache
	audit   audit.Recorder
	log     logrus.FieldLogger
	metrics *Metrics
	opts    Options
}

// New builds a service and registers its store with the gate.
func New[T store.Record](p Params[T]) (*Service[T], error) {
	if p.Gate == nil || p.Store == nil {
		return nil, gate.NewError(gate.KindValidation, "gate and store are required", nil)
	}
	if p.Table == "" {
		p.Table = p.Store.Table()
	}
	if p.Cache == nil {
		p.Cache = cache.Nop{}
	}
	if p.Audit == nil {
		p.Audit = audit.Nop{}
	}
	if p.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.Logger = l
	}
	if p.Options == (Options{}) {
		p.Options = DefaultOptions()
	}
	def := DefaultOptions()
	if p.Options.Limit <= 0 {
		p.Options.Limit = def.Limit
	}
	if p.Options.MaxQueryLimit <= 0 {
		p.Options.MaxQueryLimit = def.MaxQueryLimit
	}
	if err := p.Gate.Register(p.Table, p.Store); err != nil {
		return nil, err
	}
	return &Service[T]{
		table:   p.Table,
		gate:    p.Gate,
		store:   p.Store,
		cache:   p.Cache,
		audit:   p.Audit,
		log:     p.Logger.WithField("table", p.Table),
		metrics: p.Metrics,
		opts:    p.Options,
	}, nil
}

// Table is the resource name the service authorizes against.
func (s *Service[T]) Table() string { return s.table }

// GetRequest reads records by id or by filter. With neither, every record
// up to Limit is read.
type GetRequest struct {
	UserInfo auth.UserInfo
	IDs      []string
	Filter   map[string]any
	Skip     int
	Limit    int
}

// SaveRequest creates or updates records. Records without an id are
// created; records with one are updated. With no Records, Changes are
// applied to every record matching Filter.
type SaveRequest[T store.Record] struct {
	UserInfo auth.UserInfo
	Records  []T
	Filter   map[string]any
	Changes  map[string]any
	Validate func(T) validation.Violations
}

// DeleteRequest removes records by id or by filter.
type DeleteRequest struct {
	UserInfo auth.UserInfo
	IDs      []string
	Filter   map[string]any
}

type readParams struct {
	Table  string         `json:"table"`
	IDs    []string       `json:"ids,omitempty"`
	Filter map[string]any `json:"query,omitempty"`
	Skip   int            `json:"skip"`
	Limit  int            `json:"limit"`
}

// Get returns the records the caller may read. An empty result is a
// gate.KindNotFound error.
func (s *Service[T]) Get(ctx context.Context, req GetRequest) (out []T, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(s.table, gate.TaskRead, start, err) }()

	info, err := s.identify(ctx, req.UserInfo)
	if err != nil {
		return nil, err
	}
	params := readParams{
		Table:  s.table,
		IDs:    req.IDs,
		Filter: req.Filter,
		Skip:   max(req.Skip, 0),
		Limit:  s.clampLimit(req.Limit),
	}
	if s.opts.LogRead {
		s.audited(models.LogRead, audit.ReadLog(ctx, s.audit, s.table, info.UserID, params))
	}

	if len(req.IDs) > 0 {
		if _, err := s.authorize(ctx, gate.TaskRead, info, req.IDs); err != nil {
			return nil, err
		}
		out, err = s.fetch(ctx, params, func() ([]T, error) {
			return s.store.FindByIDs(ctx, req.IDs)
		})
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, gate.NewError(gate.KindNotFound, gate.MsgMissingRecords, nil)
		}
		return out, nil
	}

	out, err = s.fetch(ctx, params, func() ([]T, error) {
		return s.store.Find(ctx, store.Query{Filter: req.Filter, Skip: params.Skip, Limit: params.Limit})
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.AuthorizeResultSet(ctx, gate.TaskRead, info.Credentials(), s.table, gate.Identifiables(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Save creates or updates records and returns them as stored.
func (s *Service[T]) Save(ctx context.Context, req SaveRequest[T]) (out []T, err error) {
	start := time.Now()
	task := gate.TaskUpdate
	defer func() { s.metrics.observe(s.table, task, start, err) }()

	info, err := s.identify(ctx, req.UserInfo)
	if err != nil {
		return nil, err
	}
	if len(req.Records) == 0 {
		if len(req.Changes) == 0 || len(req.Filter) == 0 {
			return nil, gate.NewError(gate.KindValidation, msgNoSaveTarget, nil)
		}
		if err := checkFilter(req.Filter); err != nil {
			return nil, err
		}
		return s.updateWhere(ctx, info, req.Filter, req.Changes)
	}

	var creates, updates []T
	for i, r := range req.Records {
		if req.Validate != nil {
			if v := req.Validate(r); !v.Empty() {
				return nil, gate.NewError(gate.KindValidation, fmt.Sprintf("record %d: %s", i, v.Error()), v)
			}
		}
		if r.RecordID() == "" {
			creates = append(creates, r)
		} else {
			updates = append(updates, r)
		}
	}
	switch {
	case len(creates) > 0 && len(updates) > 0:
		return nil, gate.NewError(gate.KindValidation, msgMixedSave, nil)
	case len(creates) > 0:
		task = gate.TaskCreate
		return s.create(ctx, info, creates)
	default:
		return s.update(ctx, info, updates)
	}
}

func (s *Service[T]) create(ctx context.Context, info auth.UserInfo, records []T) ([]T, error) {
	if _, err := s.authorize(ctx, gate.TaskCreate, info, nil); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, info.UserID, records)
	if err != nil {
		return nil, s.storeError(ErrInsert, err)
	}
	s.invalidate(ctx)
	if s.opts.LogCreate {
		s.audited(models.LogCreate, audit.CreateLog(ctx, s.audit, s.table, info.UserID, created))
	}
	return created, nil
}

func (s *Service[T]) update(ctx context.Context, info auth.UserInfo, records []T) ([]T, error) {
	ids := recordIDs(records)
	if _, err := s.authorize(ctx, gate.TaskUpdate, info, ids); err != nil {
		return nil, err
	}
	current, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.storeError(ErrRead, err)
	}
	if want := countUnique(ids); len(current) < want {
		return nil, gate.NewError(gate.KindNotFound,
			fmt.Sprintf("only %d out of %d record(s) found", len(current), want), nil)
	}
	updated, err := s.store.Update(ctx, info.UserID, records)
	if err != nil {
		return nil, s.storeError(ErrUpdate, err)
	}
	s.invalidate(ctx)
	if s.opts.LogUpdate {
		s.audited(models.LogUpdate, audit.UpdateLog(ctx, s.audit, s.table, info.UserID, current, updated))
	}
	return updated, nil
}

func (s *Service[T]) updateWhere(ctx context.Context, info auth.UserInfo, filter, changes map[string]any) ([]T, error) {
	current, err := s.store.Find(ctx, store.Query{Filter: filter, Limit: s.opts.MaxQueryLimit})
	if err != nil {
		return nil, s.storeError(ErrRead, err)
	}
	if _, err := s.gate.AuthorizeResultSet(ctx, gate.TaskUpdate, info.Credentials(), s.table, gate.Identifiables(current)); err != nil {
		return nil, err
	}
	ids := recordIDs(current)
	if _, err := s.store.UpdateWhere(ctx, info.UserID, ids, changes); err != nil {
		return nil, s.storeError(ErrUpdate, err)
	}
	updated, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.storeError(ErrRead, err)
	}
	s.invalidate(ctx)
	if s.opts.LogUpdate {
		s.audited(models.LogUpdate, audit.UpdateLog(ctx, s.audit, s.table, info.UserID, current, updated))
	}
	return updated, nil
}

// Delete removes records and returns what was removed.
func (s *Service[T]) Delete(ctx context.Context, req DeleteRequest) (out []T, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(s.table, gate.TaskDelete, start, err) }()

	info, err := s.identify(ctx, req.UserInfo)
	if err != nil {
		return nil, err
	}

	var current []T
	switch {
	case len(req.IDs) > 0:
		if _, err := s.authorize(ctx, gate.TaskDelete, info, req.IDs); err != nil {
			return nil, err
		}
		if current, err = s.store.FindByIDs(ctx, req.IDs); err != nil {
			return nil, s.storeError(ErrRead, err)
		}
		if len(current) == 0 {
			return nil, gate.NewError(gate.KindNotFound, gate.MsgMissingRecords, nil)
		}
	case len(req.Filter) > 0:
		if err := checkFilter(req.Filter); err != nil {
			return nil, err
		}
		if current, err = s.store.Find(ctx, store.Query{Filter: req.Filter, Limit: s.opts.MaxQueryLimit}); err != nil {
			return nil, s.storeError(ErrRead, err)
		}
		if _, err := s.gate.AuthorizeResultSet(ctx, gate.TaskDelete, info.Credentials(), s.table, gate.Identifiables(current)); err != nil {
			return nil, err
		}
	default:
		return nil, gate.NewError(gate.KindValidation, msgNoDeleteTarget, nil)
	}

	if _, err := s.store.DeleteByIDs(ctx, recordIDs(current)); err != nil {
		return nil, s.storeError(ErrRemove, err)
	}
	s.invalidate(ctx)
	if s.opts.LogDelete {
		s.audited(models.LogDelete, audit.DeleteLog(ctx, s.audit, s.table, info.UserID, current))
	}
	return current, nil
}

// checkFilter rejects bulk filters that select by primary key. Those go
// through ids so the record-level check runs.
func checkFilter(filter map[string]any) error {
	for k := range filter {
		if strings.EqualFold(k, "id") {
			return gate.NewError(gate.KindValidation, msgFilterByID, nil)
		}
	}
	return nil
}

// identify picks the request identity, or the one carried by ctx when the
// request has none, and checks it is complete.
func (s *Service[T]) identify(ctx context.Context, info auth.UserInfo) (auth.UserInfo, error) {
	if info.Empty() {
		if fromCtx, ok := auth.UserInfoFromContext(ctx); ok {
			info = fromCtx
		}
	}
	if err := validation.UserInfo(info).Err(); err != nil {
		return info, gate.NewError(gate.KindValidation, gate.MsgInvalidIdentity, err)
	}
	return info, nil
}

func (s *Service[T]) authorize(ctx context.Context, task gate.Task, info auth.UserInfo, ids []string) (gate.Verdict, error) {
	return s.gate.Authorize(ctx, gate.Request{
		Task:        task,
		Credentials: info.Credentials(),
		Resource:    s.table,
		RecordIDs:   ids,
	})
}

func (s *Service[T]) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	return min(limit, s.opts.MaxQueryLimit)
}

// fetch serves a read from the cache, or loads and caches it. Cache faults
// fall back to the store.
func (s *Service[T]) fetch(ctx context.Context, params readParams, load func() ([]T, error)) ([]T, error) {
	key, err := cache.Key(params)
	if err != nil {
		return nil, gate.NewError(gate.KindValidation, "invalid query", err)
	}
	if b, ok, err := s.cache.Get(ctx, s.table, key); err != nil {
		s.log.WithError(err).Warn("cache read failed")
	} else if ok {
		var out []T
		if err := json.Unmarshal(b, &out); err == nil {
			s.metrics.cacheHit(s.table, true)
			return out, nil
		}
		s.log.Warn("discarding undecodable cache entry")
	}
	s.metrics.cacheHit(s.table, false)

	out, err := load()
	if err != nil {
		return nil, s.storeError(ErrRead, err)
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, s.table, key, b, s.opts.CacheExpire); err != nil {
			s.log.WithError(err).Warn("cache write failed")
		}
	}
	return out, nil
}

func (s *Service[T]) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, s.table); err != nil {
		s.log.WithError(err).Warn("cache invalidation failed")
	}
}

// audited logs a failed audit write. The operation has already happened,
// so the error is not returned.
func (s *Service[T]) audited(typ models.LogType, err error) {
	if err != nil {
		s.log.WithError(err).WithField("log_type", string(typ)).Error("audit entry not written")
	}
}

func (s *Service[T]) storeError(kind, err error) error {
	if errors.Is(err, store.ErrUnknownField) {
		return gate.NewError(gate.KindValidation, err.Error(), err)
	}
	s.log.WithError(err).Error(kind.Error())
	return fmt.Errorf("%w: %w", kind, err)
}

func recordIDs[T store.Record](records []T) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.RecordID()
	}
	return ids
}

func countUnique(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
