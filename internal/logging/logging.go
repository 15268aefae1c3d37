// Package logging sets up the tflog root logger and subsystems for vammctl.
package logging

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

const (
	// RootName names the root logger in every entry.
	RootName = "vamm"

	// EnvPrefix is joined with the subsystem name to form the per-subsystem
	// level variable, e.g. VAMM_LOG_LDAP.
	EnvPrefix = "VAMM_LOG"
)

// Init returns a context carrying a JSON root logger on stderr at level and
// every module subsystem.
func Init(ctx context.Context, level hclog.Level) context.Context {
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName(RootName),
		tfsdklog.WithLevel(level),
		tfsdklog.WithoutLocation(),
	)
	return RegisterSubsystems(ctx)
}

// RegisterSubsystems adds the ldap, repository and service subsystems to the
// root logger in ctx. A subsystem inherits the root level unless its
// VAMM_LOG_<SUBSYSTEM> variable is set.
func RegisterSubsystems(ctx context.Context) context.Context {
	for _, subsystem := range ldap.Subsystems {
		ctx = tflog.NewSubsystem(ctx, subsystem, tflog.WithLevelFromEnv(EnvPrefix, subsystem))
	}
	return ctx
}
