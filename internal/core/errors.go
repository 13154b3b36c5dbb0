package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the transport layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRemote:
		return "remote"
	default:
		return "internal"
	}
}

// Client-facing details.
const (
	DetailMisconfiguredRole    = "Misconfigured chat role"
	DetailNotAllowed           = "You are not allowed to perform this action"
	DetailConversationNotFound = "Conversation not found"
	DetailNotEnoughPermissions = "Not enough permissions"
	DetailMissingIdentifier    = "Row persisted without identifier"
	DetailPersistenceFailure   = "Failed to access conversation storage"
	DetailAssistantUnavailable = "Assistant service is unavailable"
	DetailAssistantEmpty       = "Assistant returned no answer"
	DetailEmailTaken           = "The user with this email already exists in the system"
	DetailIncorrectCredentials = "Incorrect email or password"
	DetailInactiveUser         = "Inactive user"
	DetailUserNotFound         = "User not found"
	DetailInvalidRegistration  = "Email and password are required"
	DetailEmptyContent         = "Message content cannot be empty"
)

type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors not raised by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
