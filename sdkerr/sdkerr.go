// Package sdkerr defines the error kinds returned across the SDK. Every
// exported operation returns one of these (or wraps one with
// fmt.Errorf's %w) rather than an ad-hoc error string, so callers can
// type-switch on Kind to decide whether a failure is worth an automatic
// retry (missing key, expired JWT) or must be surfaced to the user.
package sdkerr

import (
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Kind enumerates the distinguishable failure categories.
type Kind int

const (
	_ Kind = iota

	KindUsernameOrPasswordRequired
	KindUserMfaRequired

	KindUserNotFound
	KindGroupNotFound

	KindKeyNotFound
	KindKeyRequired
	KindNoGroupKeysFound
	KindGroupFetchUserKeyNotFound
	KindGroupFetchGroupKeyNotFound
	KindParentGroupKeyNotFoundButRequired

	KindJwtExpired

	KindTimeError
	KindJsonToStringFailed
	KindJsonParseFailed

	KindFileReadError
	KindFilePartNotFound

	KindRotationRetriesExhausted

	KindSdk
)

func (k Kind) String() string {
	switch k {
	case KindUsernameOrPasswordRequired:
		return "username_or_password_required"
	case KindUserMfaRequired:
		return "user_mfa_required"
	case KindUserNotFound:
		return "user_not_found"
	case KindGroupNotFound:
		return "group_not_found"
	case KindKeyNotFound:
		return "key_not_found"
	case KindKeyRequired:
		return "key_required"
	case KindNoGroupKeysFound:
		return "no_group_keys_found"
	case KindGroupFetchUserKeyNotFound:
		return "group_fetch_user_key_not_found"
	case KindGroupFetchGroupKeyNotFound:
		return "group_fetch_group_key_not_found"
	case KindParentGroupKeyNotFoundButRequired:
		return "parent_group_key_not_found_but_required"
	case KindJwtExpired:
		return "jwt_expired"
	case KindTimeError:
		return "time_error"
	case KindJsonToStringFailed:
		return "json_to_string_failed"
	case KindJsonParseFailed:
		return "json_parse_failed"
	case KindFileReadError:
		return "file_read_error"
	case KindFilePartNotFound:
		return "file_part_not_found"
	case KindRotationRetriesExhausted:
		return "rotation_retries_exhausted"
	case KindSdk:
		return "sdk"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by SDK operations. KeyId
// carries the offending key id for the kinds that reference one
// (KeyRequired, GroupFetchGroupKeyNotFound, ParentGroupKeyNotFoundButRequired);
// it is empty otherwise.
type Error struct {
	Kind  Kind
	KeyId string
	msg   string
	err   error
}

func (e *Error) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.err }

// Is allows errors.Is(err, sdkerr.New(KindJwtExpired)) style comparisons
// against the Kind alone, ignoring message/wrapped-err/KeyId payload.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a bare error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WithKeyId attaches the offending key id to a key-resolution error.
func (e *Error) WithKeyId(id string) *Error {
	e.KeyId = id
	return e
}

// Wrap tags an arbitrary error (typically from the transport layer or a
// crypto primitive) as KindSdk, preserving it for errors.Unwrap/errors.As.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindSdk, err: err}
}

// KeyRequired is returned by decrypt_string / decrypt_string_with_aad
// when the key named by id has not yet been loaded into the keyring.
func KeyRequired(id string) *Error {
	return &Error{Kind: KindKeyRequired, KeyId: id}
}

// GroupFetchGroupKeyNotFound is returned when the Access Path Resolver
// cannot find a group key referenced by an inbound ciphertext header.
func GroupFetchGroupKeyNotFound(id string) *Error {
	return &Error{Kind: KindGroupFetchGroupKeyNotFound, KeyId: id}
}

// ParentGroupKeyNotFoundButRequired is returned when a via-parent or
// via-connected access path cannot locate the ancestor's private key.
func ParentGroupKeyNotFoundButRequired(id string) *Error {
	return &Error{Kind: KindParentGroupKeyNotFoundButRequired, KeyId: id}
}

// ErrRotationRetriesExhausted is returned by the participant rotation
// loop when the configured retry ceiling (Config.RotationRetries,
// default 10) is reached with rotations still pending. It wraps a
// go-multierror aggregating one underlying cause per still-pending
// rotation so operators can see exactly what was blocking convergence.
type ErrRotationRetriesExhausted struct {
	Passes  int
	Pending []string
	errs    *multierror.Error
}

func (e *ErrRotationRetriesExhausted) Error() string {
	return fmt.Sprintf("rotation did not converge after %d passes, %d rotations still pending: %v",
		e.Passes, len(e.Pending), e.errs.ErrorOrNil())
}

func (e *ErrRotationRetriesExhausted) Unwrap() error { return e.errs.ErrorOrNil() }

// NewRotationRetriesExhausted builds the exhaustion error from the
// per-rotation causes accumulated across the retry loop.
func NewRotationRetriesExhausted(passes int, pending []string, causes []error) *ErrRotationRetriesExhausted {
	me := &multierror.Error{}
	for _, c := range causes {
		me = multierror.Append(me, c)
	}
	return &ErrRotationRetriesExhausted{Passes: passes, Pending: pending, errs: me}
}
