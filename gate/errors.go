package gate

import "errors"

// Sentinel errors. Every *AuthError matches exactly one of them via errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
)

// Messages surfaced to callers. They never say which lookup failed.
const (
	MsgNotLoggedIn      = "not logged in"
	MsgProfileInactive  = "profile not found or inactive"
	MsgNotAuthorized    = "not authorized"
	MsgUnknownTask      = "unknown task type"
	MsgAccountInactive  = "account is not active"
	MsgTokenExpired     = "access expired: please login to continue"
	MsgMissingRecords   = "missing records, required to process permission"
	MsgInvalidIdentity  = "userId, token and loginName are required"
	MsgNoRecordStore    = "no record store registered for resource"
	MsgMissingDirectory = "session, user, resource and grant directories are required"
)

// Kind classifies an AuthError.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindTokenExpired
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindTokenExpired:
		return "tokenExpired"
	case KindNotFound:
		return "notFound"
	case KindValidation:
		return "validateError"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTokenExpired:
		return ErrTokenExpired
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	default:
		return ErrUnauthorized
	}
}

// AuthError is the typed failure returned by the resolver, evaluator and gate.
// Err holds the underlying collaborator fault, if any; it is for logs only.
type AuthError struct {
	Kind    Kind
	Message string
	Verdict Verdict
	Err     error
}

// NewError builds an AuthError of the given kind.
func NewError(kind Kind, msg string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: msg, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.sentinel().Error()
}

// Unwrap exposes both the kind sentinel and the wrapped cause.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the Kind of err, or 0 when err is not an *AuthError.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

func unauthorized(msg string, cause error) *AuthError {
	return NewError(KindUnauthorized, msg, cause)
}

func denied() *AuthError {
	return &AuthError{Kind: KindUnauthorized, Message: MsgNotAuthorized, Verdict: Verdict{Allowed: false}}
}
