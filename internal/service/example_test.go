package service_test

import (
	"context"
	"fmt"
	"log"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/ldap/ldaptest"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
	"github.com/fokklz/vaadin-mail-manager/internal/repository"
	"github.com/fokklz/vaadin-mail-manager/internal/service"
)

// Example wires the services to an in-memory directory and provisions a
// domain with one account and one alias.
func Example() {
	ctx := context.Background()
	baseDN := "dc=example,dc=com"

	dir := ldaptest.NewDirectory(baseDN)
	repos := repository.New(dir, naming.New(baseDN), repository.Options{})
	quiet := service.NotifierFunc(func(context.Context, service.Event) {})
	svc := service.New(repos, quiet, service.Options{})

	admin := ldap.Identity{TestMode: true}

	if _, err := svc.Domains.Create(ctx, admin, "example.com", "Example Inc."); err != nil {
		log.Fatal(err)
	}
	account, err := svc.Accounts.Create(ctx, admin, "alice@example.com", "s3cret", "")
	if err != nil {
		log.Fatal(err)
	}
	if _, err := svc.Aliases.Create(ctx, admin, "info@example.com", []string{"alice@example.com"}, ""); err != nil {
		log.Fatal(err)
	}

	domain, err := svc.Domains.Get(ctx, admin, "example.com")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(account.DN)
	fmt.Println(account.HomeDirectory)
	fmt.Printf("%s accounts=%d aliases=%d\n", domain.Name, domain.AccountCount, domain.AliasCount)
	fmt.Println(svc.Accounts.VerifyPassword(ctx, admin, "alice@example.com", "s3cret"))
	// Output:
	// mail=alice@example.com,jvd=example.com,o=hosting,dc=example,dc=com
	// /var/vmail/example.com/alice
	// example.com accounts=1 aliases=1
	// true
}
