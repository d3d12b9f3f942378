// Package auth carries the caller's identity through a request.
package auth

import (
	"context"
	"time"

	"github.com/diewo77/go-crudgate/gate"
)

type ctxKey string

const userInfoCtxKey = ctxKey("userInfo")

// UserInfo is the identity a caller presents with every record operation.
// It is produced by the login subsystem; only UserID, Token and LoginName
// take part in authorization.
type UserInfo struct {
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Language  string    `json:"language,omitempty"`
	LoginName string    `json:"loginName"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	Expire    time.Time `json:"expire,omitempty"`
	Group     string    `json:"group,omitempty"`
}

// Credentials returns the fields checked against the session store.
func (u UserInfo) Credentials() gate.Credentials {
	return gate.Credentials{UserID: u.UserID, Token: u.Token, LoginName: u.LoginName}
}

// Empty reports whether no identity was supplied at all.
func (u UserInfo) Empty() bool {
	return u.UserID == "" && u.Token == "" && u.LoginName == ""
}

// WithUserInfo stores the caller's identity in ctx.
func WithUserInfo(ctx context.Context, info UserInfo) context.Context {
	return context.WithValue(ctx, userInfoCtxKey, info)
}

// UserInfoFromContext extracts the caller's identity.
func UserInfoFromContext(ctx context.Context) (UserInfo, bool) {
	v := ctx.Value(userInfoCtxKey)
	if v == nil {
		return UserInfo{}, false
	}
	info, ok := v.(UserInfo)
	return info, ok
}
