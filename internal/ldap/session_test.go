package ldap

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T, conn *mockConn, dialErr error) (*SessionFactory, *int) {
	t.Helper()

	dials := 0
	factory, err := NewSessionFactory(testConfig(), WithDialer(func(_ context.Context, _ *ConnectionConfig) (ldap.Client, error) {
		dials++
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}))
	require.NoError(t, err)
	return factory, &dials
}

func rootExists(conn *mockConn) {
	conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "o=hosting,dc=example,dc=com" && req.Scope == ldap.ScopeBaseObject
	})).Return(&ldap.SearchResult{
		Entries: []*ldap.Entry{ldap.NewEntry("o=hosting,dc=example,dc=com", map[string][]string{"o": {"hosting"}})},
	}, nil).Once()
}

func TestSessionFactory_OpenAsCaller(t *testing.T) {
	tests := []struct {
		name       string
		identity   Identity
		expectDN   string
		expectPass string
		expectErr  error
	}{
		{
			name:       "test mode binds as admin",
			identity:   Identity{DN: "cn=alice,o=hosting,dc=example,dc=com", Secret: "pw", TestMode: true},
			expectDN:   "cn=admin,dc=example,dc=com",
			expectPass: "admin",
		},
		{
			name:       "no credentials binds as admin",
			identity:   Identity{},
			expectDN:   "cn=admin,dc=example,dc=com",
			expectPass: "admin",
		},
		{
			name:       "caller credentials are used",
			identity:   Identity{DN: "cn=alice,o=hosting,dc=example,dc=com", Secret: "pw"},
			expectDN:   "cn=alice,o=hosting,dc=example,dc=com",
			expectPass: "pw",
		},
		{
			name:      "missing secret",
			identity:  Identity{DN: "cn=alice,o=hosting,dc=example,dc=com"},
			expectErr: ErrMissingCredentials,
		},
		{
			name:      "missing DN",
			identity:  Identity{Secret: "pw"},
			expectErr: ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockConn{}
			factory, dials := newTestFactory(t, conn, nil)

			if tt.expectErr == nil {
				conn.On("SetTimeout", factory.Config().ReadTimeout).Return()
				conn.On("Bind", tt.expectDN, tt.expectPass).Return(nil)
				rootExists(conn)
			}

			client, err := factory.OpenAsCaller(context.Background(), tt.identity)
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, client)
				assert.Equal(t, 0, *dials)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectDN, client.BoundDN())
			conn.AssertExpectations(t)
		})
	}
}

func TestSessionFactory_BindFailure(t *testing.T) {
	conn := &mockConn{}
	factory, _ := newTestFactory(t, conn, nil)

	conn.On("SetTimeout", mock.Anything).Return()
	conn.On("Bind", "cn=alice,dc=example,dc=com", "wrong").
		Return(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")))
	conn.On("Close").Return(nil)

	client, err := factory.OpenAsIdentity(context.Background(), "cn=alice,dc=example,dc=com", "wrong")
	require.Error(t, err)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
	assert.True(t, IsAuthenticationError(err))
	conn.AssertExpectations(t)
}

func TestSessionFactory_DialFailure(t *testing.T) {
	factory, dials := newTestFactory(t, nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused")))

	_, err := factory.OpenAsIdentity(context.Background(), "cn=admin,dc=example,dc=com", "admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Equal(t, 1, *dials)
}

func TestSessionFactory_CreatesRootOnce(t *testing.T) {
	conn := &mockConn{}
	factory, _ := newTestFactory(t, conn, nil)

	conn.On("SetTimeout", mock.Anything).Return()
	conn.On("Bind", "cn=admin,dc=example,dc=com", "admin").Return(nil)
	conn.On("Search", mock.Anything).
		Return(nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))).Once()
	conn.On("Add", mock.MatchedBy(func(req *ldap.AddRequest) bool {
		if req.DN != "o=hosting,dc=example,dc=com" {
			return false
		}
		for _, attr := range req.Attributes {
			if attr.Type == "objectClass" {
				return assert.ObjectsAreEqual([]string{"top", "organization"}, attr.Vals)
			}
		}
		return false
	})).Return(nil).Once()

	_, err := factory.OpenAsCaller(context.Background(), Identity{TestMode: true})
	require.NoError(t, err)

	// The second session must not search or add again.
	_, err = factory.OpenAsCaller(context.Background(), Identity{TestMode: true})
	require.NoError(t, err)

	conn.AssertExpectations(t)
	conn.AssertNumberOfCalls(t, "Search", 1)
	conn.AssertNumberOfCalls(t, "Add", 1)
}

func TestSessionFactory_RootAlreadyCreatedConcurrently(t *testing.T) {
	conn := &mockConn{}
	factory, _ := newTestFactory(t, conn, nil)

	conn.On("SetTimeout", mock.Anything).Return()
	conn.On("Bind", mock.Anything, mock.Anything).Return(nil)
	conn.On("Search", mock.Anything).Return(&ldap.SearchResult{}, nil).Once()
	conn.On("Add", mock.Anything).
		Return(ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))).Once()

	_, err := factory.OpenAsCaller(context.Background(), Identity{})
	require.NoError(t, err)
}

func TestSessionFactory_Authenticate(t *testing.T) {
	conn := &mockConn{}
	factory, _ := newTestFactory(t, conn, nil)

	conn.On("SetTimeout", mock.Anything).Return()
	conn.On("Bind", "cn=admin,dc=example,dc=com", "admin").Return(nil)
	conn.On("Close").Return(nil)

	require.NoError(t, factory.Authenticate(context.Background(), "cn=admin,dc=example,dc=com", "admin"))
	assert.ErrorIs(t, factory.Authenticate(context.Background(), "cn=admin,dc=example,dc=com", ""), ErrMissingCredentials)
	conn.AssertNotCalled(t, "Search", mock.Anything)
}

func TestNewSessionFactory_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.BaseDN = "not a dn"

	_, err := NewSessionFactory(config)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "ldap://localhost:389", config.URL)
	assert.Equal(t, "dc=example,dc=com", config.BaseDN)
	assert.Equal(t, "5s", config.ConnectTimeout.String())
	assert.Equal(t, "10s", config.ReadTimeout.String())
	assert.Equal(t, "cn=admin,dc=example,dc=com", config.AdminDN)
	assert.NoError(t, config.Validate())
}
