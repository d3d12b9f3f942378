package gate

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"
)

// Resolver turns caller credentials into an IdentityContext.
// It performs, in order and failing fast: session lookup, expiry check,
// active user lookup, active profile lookup, resource lookup and grant fetch.
type Resolver struct {
	sessions  SessionGateway
	users     UserDirectory
	resources ResourceDirectory
	grants    GrantDirectory
	cfg       Config
}

// NewResolver creates a resolver. Every directory is required.
func NewResolver(sessions SessionGateway, users UserDirectory, resources ResourceDirectory, grants GrantDirectory, opts ...Option) (*Resolver, error) {
	if sessions == nil || users == nil || resources == nil || grants == nil {
		return nil, NewError(KindValidation, MsgMissingDirectory, nil)
	}
	return &Resolver{
		sessions:  sessions,
		users:     users,
		resources: resources,
		grants:    grants,
		cfg:       newConfig(opts),
	}, nil
}

// ResolveIdentity validates the caller's session and account, then loads the
// grants of the caller's group on resourceName and recordIDs.
//
// Finding no grants is not an error; the evaluator denies by default.
// Any collaborator fault is reported as KindUnauthorized.
func (r *Resolver) ResolveIdentity(ctx context.Context, creds Credentials, resourceName string, recordIDs []string) (IdentityContext, error) {
	log := r.cfg.Logger.WithFields(logrus.Fields{"user_id": creds.UserID, "resource": resourceName})

	id, _, err := r.identity(ctx, creds, KindUnauthorized, log)
	if err != nil {
		return IdentityContext{}, err
	}

	keys := uniqueIDs(recordIDs)
	tableID := ""
	res, err := r.resources.FindResourceByName(ctx, resourceName)
	if err != nil {
		log.WithError(err).Warn("resource lookup failed")
		return IdentityContext{}, unauthorized(MsgNotAuthorized, err)
	}
	if res != nil && r.cfg.isCollection(res.Category) {
		tableID = res.ID
		keys = append(keys, res.ID)
	}

	var grants []RoleGrant
	if len(keys) > 0 {
		grants, err = r.grants.FindActiveGrants(ctx, id.GroupID, keys)
		if err != nil {
			log.WithError(err).Warn("grant lookup failed")
			return IdentityContext{}, unauthorized(MsgNotAuthorized, err)
		}
	}

	return IdentityContext{Identity: id, Grants: grants, TableID: tableID}, nil
}

// identity checks the session and account. noSession is the error kind
// reported when no session matches creds.
func (r *Resolver) identity(ctx context.Context, creds Credentials, noSession Kind, log logrus.FieldLogger) (Identity, *User, error) {
	if err := creds.validate(); err != nil {
		return Identity{}, nil, err
	}

	sess, err := r.sessions.FindSession(ctx, creds.UserID, creds.Token, creds.LoginName)
	if err != nil {
		log.WithError(err).Warn("session lookup failed")
		return Identity{}, nil, unauthorized(MsgNotLoggedIn, err)
	}
	if sess == nil {
		return Identity{}, nil, NewError(noSession, MsgNotLoggedIn, nil)
	}
	if sess.ExpiredAt(r.cfg.Now()) {
		return Identity{}, nil, NewError(KindTokenExpired, MsgTokenExpired, nil)
	}

	user, err := r.users.FindActiveUser(ctx, creds.UserID)
	if err != nil {
		log.WithError(err).Warn("user lookup failed")
		return Identity{}, nil, unauthorized(MsgProfileInactive, err)
	}
	if user == nil || !user.IsActive {
		return Identity{}, nil, unauthorized(MsgProfileInactive, nil)
	}

	profile, err := r.users.FindActiveProfile(ctx, creds.UserID)
	if err != nil {
		log.WithError(err).Warn("profile lookup failed")
		return Identity{}, nil, unauthorized(MsgProfileInactive, err)
	}
	if profile == nil || !profile.IsActive {
		return Identity{}, nil, unauthorized(MsgProfileInactive, nil)
	}

	return Identity{
		UserID:   user.ID,
		GroupID:  profile.GroupID,
		GroupIDs: slices.Clone(user.GroupIDs),
		IsActive: user.IsActive,
		IsAdmin:  user.IsAdmin,
	}, user, nil
}

// CheckLoginStatus verifies the session and that the login name belongs to
// an active user, without loading any grants. A missing session is
// KindNotFound here rather than KindUnauthorized.
func (r *Resolver) CheckLoginStatus(ctx context.Context, creds Credentials) (Identity, error) {
	log := r.cfg.Logger.WithField("user_id", creds.UserID)
	id, user, err := r.identity(ctx, creds, KindNotFound, log)
	if err != nil {
		return Identity{}, err
	}
	if !user.MatchesLogin(creds.LoginName) {
		return Identity{}, NewError(KindNotFound, "no active account for "+creds.LoginName, nil)
	}
	return id, nil
}
