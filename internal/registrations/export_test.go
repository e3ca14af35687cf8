package registrations

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
)

func TestWriteCSV(t *testing.T) {
	id := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.Registration{{
		ID: id, FirstName: "Jean", LastName: "Dupont, Jr.", Email: "j@x.com", Phone: "+33 1",
		Status: models.StatusWaitlist, RegisteredAt: at,
	}}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ExportHeader, records[0])
	assert.Equal(t, []string{id.String(), "Jean", "Dupont, Jr.", "j@x.com", "+33 1", "waitlist", "2026-03-01T11:30:00Z"}, records[1])
}

func TestExportCSVIncludesEveryStatus(t *testing.T) {
	f := newFixture(t, Options{}, freeEvent(1, 1), freeEvent(2, 1))
	ctx := context.Background()
	f.store.seedConfirmed(1, "c@x.com")
	_, err := f.svc.Register(ctx, input(1, "w@x.com"))
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, input(2, "other@x.com"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, 1, &buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "confirmed", records[1][5])
	assert.Equal(t, "waitlist", records[2][5])

	assert.ErrorIs(t, f.svc.ExportCSV(ctx, 99, &buf), ErrEventNotFound)
	assert.Equal(t, "registrations_event_1.csv", ExportFilename(1))
}
