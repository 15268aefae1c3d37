package ldap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tflogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFields(t *testing.T) {
	fields := map[string]any{
		"password":     "secret",
		"userPassword": "{SSHA}abcdef",
		"mail":         "alice@example.com",
		"detail":       "bind with password=hunter2",
		"count":        3,
	}

	sanitized := SanitizeFields(fields)

	assert.Equal(t, "[REDACTED]", sanitized["password"])
	assert.Equal(t, "[REDACTED]", sanitized["userPassword"])
	assert.Equal(t, "[REDACTED]", sanitized["detail"])
	assert.Equal(t, "alice@example.com", sanitized["mail"])
	assert.Equal(t, 3, sanitized["count"])
	// The input map is left untouched.
	assert.Equal(t, "secret", fields["password"])
}

func TestLogOperation(t *testing.T) {
	var output bytes.Buffer
	ctx := tflogtest.RootLogger(context.Background(), &output)
	ctx = tflog.NewSubsystem(ctx, SubsystemLDAP)

	err := LogOperation(ctx, SubsystemLDAP, "delete", map[string]any{
		"dn":     "jvd=example.com",
		"secret": "do-not-log",
	}, func() error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.NotContains(t, output.String(), "do-not-log")

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Starting operation", entries[0]["@message"])
	assert.Equal(t, "Operation failed", entries[1]["@message"])
	assert.Equal(t, "delete", entries[1]["operation"])
	assert.Equal(t, "boom", entries[1]["error"])
	assert.Equal(t, "[REDACTED]", entries[1]["secret"])
}
