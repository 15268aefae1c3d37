package ldap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		expectedCategory ErrorCategory
		expectedCode     uint16
		sentinel         error
	}{
		{
			name:             "invalid credentials",
			err:              ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			expectedCategory: ErrorCategoryAuthentication,
			expectedCode:     ldap.LDAPResultInvalidCredentials,
			sentinel:         ErrAuthenticationFailure,
		},
		{
			name:             "no such object",
			err:              ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")),
			expectedCategory: ErrorCategoryNotFound,
			expectedCode:     ldap.LDAPResultNoSuchObject,
			sentinel:         ErrNotFound,
		},
		{
			name:             "entry already exists",
			err:              ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists")),
			expectedCategory: ErrorCategoryConflict,
			expectedCode:     ldap.LDAPResultEntryAlreadyExists,
			sentinel:         ErrAlreadyExists,
		},
		{
			name:             "server unavailable",
			err:              ldap.NewError(ldap.LDAPResultUnavailable, errors.New("unavailable")),
			expectedCategory: ErrorCategoryServer,
			expectedCode:     ldap.LDAPResultUnavailable,
			sentinel:         ErrDirectoryUnavailable,
		},
		{
			name:             "network error",
			err:              ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused")),
			expectedCategory: ErrorCategoryConnection,
			expectedCode:     ldap.ErrorNetwork,
			sentinel:         ErrDirectoryUnavailable,
		},
		{
			name:             "object class violation",
			err:              ldap.NewError(ldap.LDAPResultObjectClassViolation, errors.New("missing roleOccupant")),
			expectedCategory: ErrorCategoryValidation,
			expectedCode:     ldap.LDAPResultObjectClassViolation,
			sentinel:         ErrInvalidArgument,
		},
		{
			name:             "generic timeout",
			err:              errors.New("read timeout"),
			expectedCategory: ErrorCategoryConnection,
			sentinel:         ErrDirectoryUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ldapErr := NewLDAPError("modify", "mail=a@example.com,jvd=example.com", tt.err)
			require.NotNil(t, ldapErr)

			assert.Equal(t, tt.expectedCategory, ldapErr.Category)
			assert.Equal(t, tt.expectedCode, ldapErr.LDAPCode)
			assert.ErrorIs(t, ldapErr, tt.sentinel)
			assert.ErrorIs(t, ldapErr, tt.err)
			assert.Contains(t, ldapErr.Error(), `directory modify of "mail=a@example.com,jvd=example.com" failed`)
		})
	}
}

func TestLDAPError_Message(t *testing.T) {
	withCode := NewLDAPError("add", "jvd=example.com", ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("entry exists")))
	assert.Equal(t, `directory add of "jvd=example.com" failed: Entry Already Exists (code 68): entry exists`, withCode.Error())

	transport := NewLDAPError("bind", "", errors.New("dial tcp: connection refused"))
	assert.Equal(t, "directory bind failed: dial tcp: connection refused", transport.Error())
}

func TestTransportCategory(t *testing.T) {
	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(fmt.Errorf("search: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(io.ErrUnexpectedEOF))
	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(errors.New("Broken pipe")))
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(errors.New("boom")))
}

func TestNewLDAPError_Nil(t *testing.T) {
	assert.Nil(t, NewLDAPError("search", "", nil))
	assert.NoError(t, WrapError("search", "", nil))
}

func TestWrapError_KeepsOriginalOperation(t *testing.T) {
	inner := NewLDAPError("add", "jvd=example.com", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")))
	wrapped := fmt.Errorf("saving domain: %w", inner)

	err := WrapError("save", "", wrapped)

	var ldapErr *LDAPError
	require.ErrorAs(t, err, &ldapErr)
	assert.Equal(t, "add", ldapErr.Operation)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestErrorPredicates(t *testing.T) {
	exists := WrapError("add", "jvd=example.com", ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists")))
	assert.Equal(t, ErrorCategoryConflict, GetErrorCategory(exists))
	assert.True(t, IsEntryAlreadyExists(exists))
	assert.True(t, IsEntryAlreadyExists(ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))))
	assert.False(t, IsNotFoundError(exists))

	denied := ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied"))
	assert.Equal(t, ErrorCategoryPermission, GetErrorCategory(denied))
	assert.False(t, IsAuthenticationError(denied))

	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
}
