package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbowles1/HIPPO/internal/config"
	"github.com/bbowles1/HIPPO/internal/infrastructure/database/redis"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

func TestOntologyAncestors_Text(t *testing.T) {
	out, err := executeCommand(t, "ontology", "ancestors", "HP:0001250", "-c", miniOBO)
	require.NoError(t, err)
	assert.Equal(t, []string{"HP:0000001", "HP:0000118", "HP:0000707", "HP:0001250"},
		strings.Fields(out))
}

func TestOntologyAncestors_JSON(t *testing.T) {
	out, err := executeCommand(t, "ontology", "ancestors", "HP:0000234", "-c", miniOBO, "--format", "json")
	require.NoError(t, err)

	var got struct {
		ID        string   `json:"id"`
		Ancestors []string `json:"ancestors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "HP:0000234", got.ID)
	assert.Equal(t, []string{"HP:0000001", "HP:0000118", "HP:0000152", "HP:0000234"}, got.Ancestors)
}

func TestOntologyAncestors_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"unknown term", []string{"HP:9999999", "-c", miniOBO}, errors.ErrCodeNotFound},
		{"obsolete term", []string{"HP:0000999", "-c", miniOBO}, errors.ErrCodeNotFound},
		{"bad format", []string{"HP:0001250", "-c", miniOBO, "--format", "xml"}, errors.ErrCodeValidation},
		{"no catalog", []string{"HP:0001250"}, errors.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, append([]string{"ontology", "ancestors"}, tt.args...)...)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), err.Error())
		})
	}
}

func TestOntologyAncestors_RequiresID(t *testing.T) {
	_, err := executeCommand(t, "ontology", "ancestors", "-c", miniOBO)
	assert.Error(t, err)
}

func TestOntologyImport(t *testing.T) {
	store := &fakeGraphStore{count: 7}
	closed := stubGraphStore(t, store)

	out, err := executeCommand(t, "ontology", "import", "-c", miniOBO)
	require.NoError(t, err)

	require.NotNil(t, store.imported)
	assert.Len(t, store.imported.Terms, 8)
	assert.Equal(t, "hp/releases/2024-01-16", store.imported.DataVersion)
	assert.Contains(t, out, "imported 8 terms (7 active)")
	assert.True(t, *closed)
}

func TestOntologyImport_StoreFailure(t *testing.T) {
	stubGraphStore(t, &fakeGraphStore{
		err: errors.New(errors.ErrCodeOntologyImportFailed, "write failed"),
	})

	_, err := executeCommand(t, "ontology", "import", "-c", miniOBO)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOntologyImportFailed))
}

func TestOntologyImport_RequiresCatalog(t *testing.T) {
	_, err := executeCommand(t, "ontology", "import")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestOntologyImport_LockUnavailable(t *testing.T) {
	store := &fakeGraphStore{}
	stubGraphStore(t, store)

	orig := openRedis
	openRedis = func(context.Context, config.RedisConfig, logging.Logger) (*redis.Client, error) {
		return nil, errors.Wrap(stderrors.New("dial tcp: refused"), errors.ErrCodeServiceUnavailable, "redis unreachable")
	}
	t.Cleanup(func() { openRedis = orig })

	_, err := executeCommand(t, "ontology", "import", "-c", miniOBO, "--lock")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	assert.Nil(t, store.imported, "nothing is written without the lock")
}
