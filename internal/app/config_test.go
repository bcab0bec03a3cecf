package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.AppStore)
	require.Equal(t, IssuerJWT, cfg.TokenIssuer)
	require.Equal(t, []string{"DIR", "ORG"}, cfg.StructureParentRules.ParentTypes("DEPT"))
	require.True(t, cfg.AuthEnforce)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("TOKEN_ISSUER", IssuerRemote)
	_, err = LoadConfig()
	require.ErrorContains(t, err, "remote issuer url")

	t.Setenv("REMOTE_ISSUER_URL", "http://issuer.local")
	_, err = LoadConfig()
	require.NoError(t, err)

	t.Setenv("APP_STORE", "sqlite")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRulesFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("parents:\n  team: [dept]\n"), 0o600))
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("STRUCTURE_PARENT_RULES", "DEPT=ORG")
	t.Setenv("STRUCTURE_RULES_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"DEPT"}, cfg.StructureParentRules.ParentTypes("TEAM"))
	require.Empty(t, cfg.StructureParentRules.ParentTypes("DEPT"))
}
