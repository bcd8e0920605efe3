package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitlink/internal/jwt"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("VAULT_SECRET", "vault-secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CACHE_DRIVER", "memory")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTokenIssue(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "", "token", "issue", "--user", "12")
	require.NoError(t, err)

	iss, err := jwt.NewIssuer("fitlink", "cli-secret")
	require.NoError(t, err)
	uid, err := iss.ParseAccess(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(12), uid)
}

func TestTokenIssue_RequiresUser(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "", "token", "issue")
	assert.Error(t, err)
}

func TestSync_RejectsUnknownProvider(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "", "sync", "polar", "--user", "1")
	assert.Error(t, err)
}

func TestSync_NotConnected(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "", "sync", "strava", "--user", "1")
	assert.Error(t, err)
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestConfigMissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("VAULT_SECRET", "vault-secret")
	_, err := run(t, "", "token", "issue", "--user", "1")
	assert.Error(t, err)
}

func TestPrompter_SecretFromPipe(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("runner@example.com\nhunter2\n"), &out)

	user, pass, err := credentials(p, "")
	require.NoError(t, err)
	assert.Equal(t, "runner@example.com", user)
	assert.Equal(t, "hunter2", pass)
	assert.Contains(t, out.String(), "Contraseña")
}
