package repository

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// MockClient implements ldap.Client for request-level assertions.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*ldap.SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Add(ctx context.Context, req *ldap.AddRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockClient) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockClient) Delete(ctx context.Context, dn string) error {
	return m.Called(ctx, dn).Error(0)
}

func (m *MockClient) BoundDN() string {
	return m.Called().String(0)
}

func (m *MockClient) Close() error {
	return m.Called().Error(0)
}

// staticOpener always returns the same client.
type staticOpener struct {
	client ldap.Client
}

func (o staticOpener) OpenAsCaller(context.Context, ldap.Identity) (ldap.Client, error) {
	return o.client, nil
}

func newMockRepositories(client *MockClient) *Repositories {
	return New(staticOpener{client: client}, naming.New("dc=example,dc=com"), Options{})
}

func TestAccounts_SearchByDomainEscapesTerm(t *testing.T) {
	client := &MockClient{}
	client.On("Close").Return(nil)
	client.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "jvd=example.com,o=hosting,dc=example,dc=com" &&
			req.Scope == ldap.ScopeWholeSubtree &&
			req.Filter == `(&(objectClass=JammMailAccount)(mail=*a\2a\28b\29*))`
	})).Return(&ldap.SearchResult{}, nil).Once()

	repos := newMockRepositories(client)
	accounts := repos.Accounts.SearchByDomain(context.Background(), adminIdentity, "example.com", "a*(b)")

	assert.Empty(t, accounts)
	client.AssertExpectations(t)
}

func TestPostmasters_FindByRoleOccupantFilter(t *testing.T) {
	client := &MockClient{}
	client.On("Close").Return(nil)
	client.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "o=hosting,dc=example,dc=com" &&
			req.Filter == `(&(objectClass=JammPostmaster)(roleOccupant=cn=admin\2a,dc=example,dc=com))`
	})).Return(&ldap.SearchResult{}, nil).Once()

	repos := newMockRepositories(client)
	repos.Postmasters.FindByRoleOccupant(context.Background(), adminIdentity, "cn=admin*,dc=example,dc=com")

	client.AssertExpectations(t)
}

func TestAliases_SaveAddsWithObjectClasses(t *testing.T) {
	client := &MockClient{}
	client.On("Close").Return(nil)
	client.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeBaseObject &&
			req.BaseDN == "mail=info@example.com,jvd=example.com,o=hosting,dc=example,dc=com"
	})).Return(&ldap.SearchResult{}, nil).Once()

	var added *ldap.AddRequest
	client.On("Add", mock.Anything, mock.AnythingOfType("*ldap.AddRequest")).
		Run(func(args mock.Arguments) { added = args.Get(1).(*ldap.AddRequest) }).
		Return(nil).Once()

	repos := newMockRepositories(client)
	alias := mail.NewMailAlias("info@example.com", "alice@example.com")
	require.NoError(t, repos.Aliases.Save(context.Background(), adminIdentity, alias))

	require.NotNil(t, added)
	assert.Equal(t, []string{"top", "JammMailAlias"}, added.Attributes["objectClass"])
	assert.Equal(t, []string{"info@example.com"}, added.Attributes["mail"])
	assert.Equal(t, []string{"alice@example.com"}, added.Attributes["maildrop"])
	assert.Equal(t, []string{"TRUE"}, added.Attributes["accountActive"])
	assert.NotContains(t, added.Attributes, "description")
	client.AssertExpectations(t)
}

func TestDomains_FindAllSearchErrorIsEmpty(t *testing.T) {
	client := &MockClient{}
	client.On("Close").Return(nil)
	client.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	repos := newMockRepositories(client)

	domains := repos.Domains.FindAll(context.Background(), adminIdentity)
	assert.NotNil(t, domains)
	assert.Empty(t, domains)
	client.AssertExpectations(t)
}

func TestDomains_ModifyKeepsNamingAttribute(t *testing.T) {
	existing := mail.NewVirtualDomain("example.com")
	existing.Description = "old"

	client := &MockClient{}
	client.On("Close").Return(nil)
	client.On("Search", mock.Anything, mock.Anything).Return(&ldap.SearchResult{
		Entries: []*goldap.Entry{
			goldap.NewEntry("jvd=example.com,o=hosting,dc=example,dc=com", domainRecord(existing).attributes),
		},
	}, nil).Once()

	var modified *ldap.ModifyRequest
	client.On("Modify", mock.Anything, mock.AnythingOfType("*ldap.ModifyRequest")).
		Run(func(args mock.Arguments) { modified = args.Get(1).(*ldap.ModifyRequest) }).
		Return(nil).Once()

	repos := newMockRepositories(client)
	d := mail.NewVirtualDomain("example.com")
	require.NoError(t, repos.Domains.Save(context.Background(), adminIdentity, d))

	require.NotNil(t, modified)
	assert.NotContains(t, modified.ReplaceAttributes, "jvd")
	assert.NotContains(t, modified.ReplaceAttributes, "objectClass")
	assert.Equal(t, []string{"description"}, modified.DeleteAttributes)
	assert.Equal(t, []string{"virtual:"}, modified.ReplaceAttributes["postfixTransport"])
	client.AssertExpectations(t)
}
