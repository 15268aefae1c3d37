package repository

import (
	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/ldap/ldaptest"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

const testBaseDN = "dc=example,dc=com"

var adminIdentity = ldap.Identity{TestMode: true}

func newFakeDirectory() *ldaptest.Directory {
	return ldaptest.NewDirectory(testBaseDN)
}

func newRepositories(dir *ldaptest.Directory) *Repositories {
	return New(dir, naming.New(testBaseDN), Options{})
}
