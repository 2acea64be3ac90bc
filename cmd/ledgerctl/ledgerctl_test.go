package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_SECRET", "")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenIssueAndVerify(t *testing.T) {
	owner := uuid.New()
	secret := "a-long-enough-test-secret"

	out, err := execute(t, "token", "issue", "--owner", owner.String(), "--ttl", "1h", "--secret", secret)
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	assert.Equal(t, 2, strings.Count(token, "."))

	out, err = execute(t, "token", "verify", token, "--secret", secret)
	require.NoError(t, err)
	assert.Contains(t, out, "owner "+owner.String())

	_, err = execute(t, "token", "verify", token, "--secret", "another-secret-value")
	assert.Error(t, err)
}

func TestTokenIssueRequiresSecretAndOwner(t *testing.T) {
	_, err := execute(t, "token", "issue", "--owner", uuid.NewString())
	assert.ErrorIs(t, err, errNoSecret)

	_, err = execute(t, "token", "issue", "--owner", "nope", "--secret", "s")
	assert.ErrorContains(t, err, "invalid --owner")

	_, err = execute(t, "token", "issue", "--secret", "s")
	assert.Error(t, err, "--owner is required")
}

func TestMigrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")

	out, err := execute(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")
	assert.NotContains(t, out, "version 0")

	out, err = execute(t, "migrate", "--db", db, "--status")
	require.NoError(t, err)
	assert.NotContains(t, out, "dirty")

	_, err = execute(t, "migrate", "--db", db, "--status", "--rollback", "1")
	assert.Error(t, err)
}
