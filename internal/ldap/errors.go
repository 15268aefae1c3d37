package ldap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Error taxonomy shared by every layer above the transport.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrDirectoryUnavailable  = errors.New("directory unavailable")
	ErrRepositoryFailure     = errors.New("repository failure")
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError is a failed directory operation together with the category its
// result code falls into.
type LDAPError struct {
	Operation string
	DN        string
	Category  ErrorCategory
	LDAPCode  uint16 // zero for transport failures without a result
	Detail    string // diagnostic text from the server or the transport
	Cause     error
}

func (e *LDAPError) Error() string {
	var b strings.Builder
	b.WriteString("directory " + e.Operation)
	if e.DN != "" {
		fmt.Fprintf(&b, " of %q", e.DN)
	}
	b.WriteString(" failed")
	if e.LDAPCode > 0 {
		fmt.Fprintf(&b, ": %s (code %d)", resultName(e.LDAPCode), e.LDAPCode)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// Is maps the category onto the sentinel taxonomy so callers can use errors.Is.
func (e *LDAPError) Is(target error) bool {
	switch target {
	case ErrAuthenticationFailure:
		return e.Category == ErrorCategoryAuthentication
	case ErrDirectoryUnavailable:
		return e.Category == ErrorCategoryConnection || e.Category == ErrorCategoryServer
	case ErrNotFound:
		return e.Category == ErrorCategoryNotFound
	case ErrAlreadyExists:
		return e.LDAPCode == ldap.LDAPResultEntryAlreadyExists
	case ErrInvalidArgument:
		return e.Category == ErrorCategoryValidation
	}
	return false
}

// NewLDAPError classifies err, a failure of operation on dn. A nil err yields nil.
func NewLDAPError(operation, dn string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	e := &LDAPError{Operation: operation, DN: dn, Cause: err}

	var result *ldap.Error
	if errors.As(err, &result) {
		e.LDAPCode = result.ResultCode
		e.Category = categoryOf(result.ResultCode)
		if result.Err != nil {
			e.Detail = result.Err.Error()
		}
		return e
	}

	e.Category = transportCategory(err)
	e.Detail = err.Error()
	return e
}

// resultCategories groups the result codes the mail tree can produce. Codes
// not listed are ErrorCategoryUnknown.
var resultCategories = map[uint16]ErrorCategory{
	ldap.LDAPResultInvalidCredentials:          ErrorCategoryAuthentication,
	ldap.LDAPResultInappropriateAuthentication: ErrorCategoryAuthentication,
	ldap.LDAPResultStrongAuthRequired:          ErrorCategoryAuthentication,
	ldap.ErrorEmptyPassword:                    ErrorCategoryAuthentication,

	ldap.LDAPResultInsufficientAccessRights: ErrorCategoryPermission,
	ldap.LDAPResultUnwillingToPerform:       ErrorCategoryPermission,

	ldap.LDAPResultNoSuchObject:           ErrorCategoryNotFound,
	ldap.LDAPResultNoSuchAttribute:        ErrorCategoryNotFound,
	ldap.LDAPResultUndefinedAttributeType: ErrorCategoryNotFound,

	ldap.LDAPResultEntryAlreadyExists:     ErrorCategoryConflict,
	ldap.LDAPResultAttributeOrValueExists: ErrorCategoryConflict,
	ldap.LDAPResultNotAllowedOnNonLeaf:    ErrorCategoryConflict,

	ldap.LDAPResultInvalidAttributeSyntax: ErrorCategoryValidation,
	ldap.LDAPResultConstraintViolation:    ErrorCategoryValidation,
	ldap.LDAPResultObjectClassViolation:   ErrorCategoryValidation,
	ldap.LDAPResultInvalidDNSyntax:        ErrorCategoryValidation,
	ldap.LDAPResultNamingViolation:        ErrorCategoryValidation,
	ldap.LDAPResultFilterError:            ErrorCategoryValidation,
	ldap.ErrorFilterCompile:               ErrorCategoryValidation,

	ldap.LDAPResultServerDown:         ErrorCategoryServer,
	ldap.LDAPResultUnavailable:        ErrorCategoryServer,
	ldap.LDAPResultBusy:               ErrorCategoryServer,
	ldap.LDAPResultTimeLimitExceeded:  ErrorCategoryServer,
	ldap.LDAPResultAdminLimitExceeded: ErrorCategoryServer,
	ldap.LDAPResultTimeout:            ErrorCategoryServer,

	ldap.LDAPResultConnectError:  ErrorCategoryConnection,
	ldap.LDAPResultProtocolError: ErrorCategoryConnection,
	ldap.ErrorNetwork:            ErrorCategoryConnection,
}

func categoryOf(code uint16) ErrorCategory {
	if c, ok := resultCategories[code]; ok {
		return c
	}
	return ErrorCategoryUnknown
}

// transportCategory classifies failures that carry no result code.
func transportCategory(err error) ErrorCategory {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorCategoryConnection
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection", "network", "timeout", "broken pipe"} {
		if strings.Contains(msg, hint) {
			return ErrorCategoryConnection
		}
	}
	return ErrorCategoryUnknown
}

func resultName(code uint16) string {
	if name, ok := ldap.LDAPResultCodeMap[code]; ok {
		return name
	}
	return "unknown result"
}

// WrapError wraps an error with operation context. Errors that are already
// an *LDAPError keep their original operation.
func WrapError(operation, dn string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		return err
	}

	return NewLDAPError(operation, dn, err)
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var result *ldap.Error
	if errors.As(err, &result) {
		return categoryOf(result.ResultCode)
	}

	return transportCategory(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsEntryAlreadyExists checks for the exact entryAlreadyExists result code.
func IsEntryAlreadyExists(err error) bool {
	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.LDAPCode == ldap.LDAPResultEntryAlreadyExists
	}
	return ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists)
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}
