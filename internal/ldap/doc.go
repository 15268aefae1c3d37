/*
Package ldap provides the directory session layer for the hosted-mail tree.

It dials the configured server, binds as the calling identity and hands back a
Client that performs exactly the four operations the repositories need:
subtree or one-level searches, adds, attribute modifications and deletes.

# Sessions

A SessionFactory produces short-lived sessions. There is no pooling and no
shared connection: each repository call opens one session, uses it and closes
it before returning.

  - OpenAsCaller binds with the caller's own DN and secret; test mode and
    identities without credentials fall back to the configured administrator
  - OpenAsIdentity binds with explicit credentials and tags the session with a
    correlation id for the logs
  - Authenticate checks a DN and secret pair and releases the connection

The first successful session verifies that the o=hosting container exists
below the base DN and creates it when missing.

# Error Handling

Server result codes are mapped onto LDAPError categories (connection,
authentication, permission, not_found, conflict, validation, server). Every
LDAPError also matches the package sentinels with errors.Is, so callers can
test for ErrNotFound or ErrAlreadyExists without inspecting codes.

# Escaping

EscapeDNValue and EscapeFilterTerm must be applied to every user-supplied
value before it is placed in a DN or a filter. NormalizeDN and EqualDN give a
canonical spelling and a directory-style comparison for stored DNs.

# Logging

All operations log through the tflog subsystems named in Subsystems, with
secrets redacted by SanitizeFields.

# Example Usage

	config := ldap.DefaultConfig()
	config.URL = "ldaps://directory.example.com:636"
	config.BaseDN = "dc=example,dc=com"

	factory, err := ldap.NewSessionFactory(config)
	if err != nil {
		return err
	}

	client, err := factory.OpenAsCaller(ctx, ldap.Identity{DN: userDN, Secret: secret})
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Search(ctx, &ldap.SearchRequest{
		BaseDN: factory.RootDN(),
		Scope:  ldap.ScopeSingleLevel,
		Filter: "(objectClass=JammVirtualDomain)",
	})
*/
package ldap
