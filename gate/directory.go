package gate

import (
	"context"
	"slices"
	"sync"
)

// The directories below are read-only from the gate's point of view.
// A lookup that finds nothing returns (nil, nil); an error means the
// lookup itself failed.

// SessionGateway looks up stored logins.
type SessionGateway interface {
	FindSession(ctx context.Context, userID, token, loginName string) (*Session, error)
}

// UserDirectory resolves active users and their profiles.
type UserDirectory interface {
	FindActiveUser(ctx context.Context, userID string) (*User, error)
	FindActiveProfile(ctx context.Context, userID string) (*Profile, error)
}

// ResourceDirectory resolves a resource name to its id and category.
type ResourceDirectory interface {
	FindResourceByName(ctx context.Context, name string) (*Resource, error)
}

// GrantDirectory returns the active grants of a group whose service id is
// one of keys.
type GrantDirectory interface {
	FindActiveGrants(ctx context.Context, groupID string, keys []string) ([]RoleGrant, error)
}

// OwnershipCounter counts the records among recordIDs created by ownerID.
type OwnershipCounter interface {
	CountOwned(ctx context.Context, recordIDs []string, ownerID string) (int64, error)
}

// StaticDirectory is an in-memory implementation of every directory.
// Useful for tests and dry runs.
type StaticDirectory struct {
	mu        sync.RWMutex
	sessions  map[Credentials]Session
	users     map[string]User
	profiles  map[string]Profile
	resources map[string]Resource
	grants    []staticGrant
	owners    map[string]string
}

type staticGrant struct {
	grant  RoleGrant
	active bool
}

// NewStaticDirectory creates an empty in-memory directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		sessions:  make(map[Credentials]Session),
		users:     make(map[string]User),
		profiles:  make(map[string]Profile),
		resources: make(map[string]Resource),
		owners:    make(map[string]string),
	}
}

func (d *StaticDirectory) AddSession(s Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[Credentials{UserID: s.UserID, Token: s.Token, LoginName: s.LoginName}] = s
}

func (d *StaticDirectory) AddUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *StaticDirectory) AddProfile(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

func (d *StaticDirectory) AddResource(r Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources[r.Name] = r
}

// AddGrant stores a grant; inactive grants are kept but never returned.
func (d *StaticDirectory) AddGrant(g RoleGrant, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grants = append(d.grants, staticGrant{grant: g, active: active})
}

// SetOwner records ownerID as the creator of recordID.
func (d *StaticDirectory) SetOwner(recordID, ownerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[recordID] = ownerID
}

func (d *StaticDirectory) FindSession(_ context.Context, userID, token, loginName string) (*Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[Credentials{UserID: userID, Token: token, LoginName: loginName}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *StaticDirectory) FindActiveUser(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok || !u.IsActive {
		return nil, nil
	}
	u.GroupIDs = slices.Clone(u.GroupIDs)
	return &u, nil
}

func (d *StaticDirectory) FindActiveProfile(_ context.Context, userID string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok || !p.IsActive {
		return nil, nil
	}
	return &p, nil
}

func (d *StaticDirectory) FindResourceByName(_ context.Context, name string) (*Resource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.resources[name]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (d *StaticDirectory) FindActiveGrants(_ context.Context, groupID string, keys []string) ([]RoleGrant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []RoleGrant
	for _, sg := range d.grants {
		if sg.active && sg.grant.GroupID == groupID && slices.Contains(keys, sg.grant.ServiceID()) {
			out = append(out, sg.grant)
		}
	}
	return out, nil
}

func (d *StaticDirectory) CountOwned(_ context.Context, recordIDs []string, ownerID string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var n int64
	for _, id := range uniqueIDs(recordIDs) {
		if owner, ok := d.owners[id]; ok && owner == ownerID {
			n++
		}
	}
	return n, nil
}
