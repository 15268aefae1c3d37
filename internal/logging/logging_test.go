package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tflogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fokklz/vaadin-mail-manager/internal/ldap"
)

func TestRegisterSubsystems(t *testing.T) {
	var output bytes.Buffer
	ctx := RegisterSubsystems(tflogtest.RootLogger(context.Background(), &output))

	for _, subsystem := range ldap.Subsystems {
		tflog.SubsystemInfo(ctx, subsystem, "hello", map[string]any{"from": subsystem})
	}

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, len(ldap.Subsystems))
	for i, subsystem := range ldap.Subsystems {
		assert.Equal(t, "hello", entries[i]["@message"])
		assert.Equal(t, subsystem, entries[i]["from"])
		assert.True(t, strings.HasSuffix(entries[i]["@module"].(string), "."+subsystem))
	}
}

func TestRegisterSubsystems_LevelFromEnv(t *testing.T) {
	t.Setenv("VAMM_LOG_SERVICE", "ERROR")

	var output bytes.Buffer
	ctx := RegisterSubsystems(tflogtest.RootLogger(context.Background(), &output))

	tflog.SubsystemInfo(ctx, ldap.SubsystemService, "suppressed")
	tflog.SubsystemError(ctx, ldap.SubsystemService, "kept")
	tflog.SubsystemInfo(ctx, ldap.SubsystemLDAP, "inherited")

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0]["@message"])
	assert.Equal(t, "inherited", entries[1]["@message"])
}

func TestInit(t *testing.T) {
	for _, level := range []hclog.Level{hclog.NoLevel, hclog.Debug, hclog.Error} {
		assert.NotPanics(t, func() {
			ctx := Init(context.Background(), level)
			tflog.SubsystemTrace(ctx, ldap.SubsystemLDAP, "below every configured level")
		})
	}
}
