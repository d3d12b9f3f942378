package gate

// ScopeKind distinguishes collection-level grants from record-level grants.
type ScopeKind int

const (
	ScopeCollection ScopeKind = iota + 1
	ScopeRecord
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeCollection:
		return "collection"
	case ScopeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// GrantScope is what a grant applies to: a whole resource or one record.
// A collection grant and a record grant never match each other even when
// their targets are the same string.
type GrantScope struct {
	Kind   ScopeKind
	Target string
}

// CollectionScope scopes a grant to every record of resourceID.
func CollectionScope(resourceID string) GrantScope {
	return GrantScope{Kind: ScopeCollection, Target: resourceID}
}

// RecordScope scopes a grant to a single record.
func RecordScope(recordID string) GrantScope {
	return GrantScope{Kind: ScopeRecord, Target: recordID}
}

// RoleGrant is a group's permission on one scope.
type RoleGrant struct {
	GroupID   string
	Scope     GrantScope
	CanRead   bool
	CanCreate bool
	CanUpdate bool
	CanDelete bool
}

// ServiceID is the id of the resource or record the grant targets.
func (g RoleGrant) ServiceID() string { return g.Scope.Target }

// Allows reports whether the grant carries the flag for a.
func (g RoleGrant) Allows(a Action) bool {
	switch a {
	case ActionCreate:
		return g.CanCreate
	case ActionRead:
		return g.CanRead
	case ActionUpdate:
		return g.CanUpdate
	case ActionDelete:
		return g.CanDelete
	default:
		return false
	}
}

// partitionGrants splits grants into those on the table and those on one of
// the requested records. Grants on anything else are dropped.
func partitionGrants(grants []RoleGrant, tableID string, recordIDs []string) (collection, record []RoleGrant) {
	wanted := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		wanted[id] = struct{}{}
	}
	for _, g := range grants {
		switch g.Scope.Kind {
		case ScopeCollection:
			if tableID != "" && g.Scope.Target == tableID {
				collection = append(collection, g)
			}
		case ScopeRecord:
			if _, ok := wanted[g.Scope.Target]; ok {
				record = append(record, g)
			}
		}
	}
	return collection, record
}

// collectionPermitted requires every collection grant to allow a.
// One insufficient grant vetoes collection-level access.
func collectionPermitted(grants []RoleGrant, a Action) bool {
	if len(grants) == 0 {
		return false
	}
	for _, g := range grants {
		if !g.Allows(a) {
			return false
		}
	}
	return true
}

// recordPermitted requires each record id to be covered by at least one
// record grant allowing a.
func recordPermitted(grants []RoleGrant, recordIDs []string, a Action) bool {
	if len(recordIDs) == 0 {
		return false
	}
	covered := make(map[string]bool, len(recordIDs))
	for _, g := range grants {
		if g.Allows(a) {
			covered[g.ServiceID()] = true
		}
	}
	for _, id := range recordIDs {
		if !covered[id] {
			return false
		}
	}
	return true
}
