package registry_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/relabs-tech/sastoken/core/csql"
	"github.com/relabs-tech/sastoken/iot/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {
	m, err := registry.LoadJSON([]byte(`{"devices": [
		{"device_id": "dev1", "key": "dGVzdGtleQ=="},
		{"device_id": "dev2", "key": "b3RoZXJrZXk="}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	key, err := m.DeviceKey(context.Background(), "dev2")
	require.NoError(t, err)
	assert.Equal(t, "b3RoZXJrZXk=", key)

	_, err = m.DeviceKey(context.Background(), "dev3")
	assert.True(t, errors.Is(err, registry.ErrUnknownDevice))
}

func TestLoadJSONInvalid(t *testing.T) {
	for _, doc := range []string{
		`{}`,
		`{"devices": [{"device_id": "dev1"}]}`,
		`{"devices": [{"device_id": "dev1", "key": "not base64!"}]}`,
		`{"devices": [{"device_id": "", "key": "dGVzdGtleQ=="}]}`,
		`{"devices": [{"device_id": "dev1", "key": "dGVzdGtleQ=="}, {"device_id": "dev1", "key": "dGVzdGtleQ=="}]}`,
		`not json`,
	} {
		_, err := registry.LoadJSON([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestMemory(t *testing.T) {
	m := registry.NewMemory()
	m.Put("dev1", "dGVzdGtleQ==")
	key, err := m.DeviceKey(context.Background(), "dev1")
	require.NoError(t, err)
	assert.Equal(t, "dGVzdGtleQ==", key)

	m.Delete("dev1")
	_, err = m.DeviceKey(context.Background(), "dev1")
	assert.True(t, errors.Is(err, registry.ErrUnknownDevice))
}

// TestSQL needs a postgres database, e.g.
// POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
func TestSQL(t *testing.T) {
	dsn := os.Getenv("POSTGRES")
	if dsn == "" {
		t.Skip("POSTGRES is not set")
	}
	ctx := context.Background()
	db, err := csql.Open(ctx, dsn, "_registry_unit_test_")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.ClearSchema(ctx))

	r := registry.NewSQL(db)
	require.NoError(t, r.Put(ctx, "dev1", "dGVzdGtleQ=="))
	require.NoError(t, r.Put(ctx, "dev1", "b3RoZXJrZXk="))

	key, err := r.DeviceKey(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "b3RoZXJrZXk=", key)

	_, err = r.DeviceKey(ctx, "dev2")
	assert.True(t, errors.Is(err, registry.ErrUnknownDevice))
}
