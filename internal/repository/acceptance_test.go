package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fokklz/vaadin-mail-manager/internal/config"
	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
	"github.com/fokklz/vaadin-mail-manager/internal/mail"
	"github.com/fokklz/vaadin-mail-manager/internal/naming"
)

// EnvAcceptance enables tests against the directory configured through the
// VAMM_* variables (or the file named by VAMM_CONFIG).
const EnvAcceptance = "VAMM_ACC"

// testAccRepositories skips unless acceptance tests are enabled.
func testAccRepositories(t *testing.T) *Repositories {
	t.Helper()
	if os.Getenv(EnvAcceptance) == "" {
		t.Skipf("Skipping acceptance test - set %s=1 to run", EnvAcceptance)
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	require.NoError(t, err)

	factory, err := ldap.NewSessionFactory(cfg.LDAP)
	require.NoError(t, err)

	return New(factory, naming.New(cfg.LDAP.BaseDN), Options{DefaultOccupant: cfg.Mail.DefaultOccupant})
}

func testAccDomainName() string {
	return "acc-" + uuid.NewString()[:8] + ".example.test"
}

func TestAccDomainLifecycle(t *testing.T) {
	repos := testAccRepositories(t)
	ctx := context.Background()
	name := testAccDomainName()
	t.Cleanup(func() {
		_ = repos.Domains.DeleteCascade(context.Background(), adminIdentity, name)
	})

	d := mail.NewVirtualDomain(name)
	d.Description = "acceptance"
	require.NoError(t, repos.Domains.Save(ctx, adminIdentity, d))
	require.NoError(t, repos.Postmasters.Save(ctx, adminIdentity, mail.NewPostmaster(name, repos.Postmasters.DefaultOccupant())))

	account := mail.NewMailAccount("alice@"+name, "/var/vmail/"+name+"/alice", "alice/")
	require.NoError(t, account.SetPassword("secret"))
	require.NoError(t, repos.Accounts.Save(ctx, adminIdentity, account))
	require.NoError(t, repos.Aliases.Save(ctx, adminIdentity, mail.NewMailAlias("info@"+name, "alice@"+name)))

	found, ok := repos.Accounts.FindByKey(ctx, adminIdentity, "alice@"+name)
	require.True(t, ok)
	assert.True(t, found.VerifyPassword("secret"))
	assert.Equal(t, 1, repos.Aliases.CountByDomain(ctx, adminIdentity, name))

	require.NoError(t, repos.Domains.DeleteCascade(ctx, adminIdentity, name))
	assert.False(t, repos.Domains.Exists(ctx, adminIdentity, name))
	assert.False(t, repos.Accounts.Exists(ctx, adminIdentity, "alice@"+name))
	assert.False(t, repos.Postmasters.Exists(ctx, adminIdentity, name))
}
