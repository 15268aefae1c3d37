package ldap

import (
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

// mockConn implements the go-ldap Client interface for the methods the
// session layer uses. Calling any other method panics.
type mockConn struct {
	ldap.Client
	mock.Mock
}

func (m *mockConn) SetTimeout(timeout time.Duration) {
	m.Called(timeout)
}

func (m *mockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *mockConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(req)
	if result, ok := args.Get(0).(*ldap.SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockConn) Add(req *ldap.AddRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *mockConn) Modify(req *ldap.ModifyRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *mockConn) Del(req *ldap.DelRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *mockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig() *ConnectionConfig {
	config := DefaultConfig()
	config.URL = "ldap://directory.test:389"
	return config
}
