package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	assert.Contains(t, names, "002_registration_retention.sql")
	assert.IsIncreasing(t, names)
}

func TestSchemaDeclaresRegistrationConstraints(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	s := string(sql)
	assert.Contains(t, s, "registrations_confirmed_email_uniq")
	assert.Contains(t, s, "WHERE status = 'confirmed'")
	assert.Contains(t, s, "(token IS NULL) = (token_expires IS NULL)")
	assert.Contains(t, s, "registrations_payment_session_uniq")
}

func TestRegistrationsSurviveEventDelete(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/002_registration_retention.sql")
	require.NoError(t, err)
	s := string(sql)
	assert.Contains(t, s, "REFERENCES events(id) ON DELETE RESTRICT")
	assert.NotContains(t, s, "CASCADE")
	assert.Contains(t, s, "confirmed_token_hash")
}
