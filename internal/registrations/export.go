package registrations

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/aura-events/backend/internal/models"
)

// ExportHeader is the first line of every registrations CSV.
var ExportHeader = []string{"id", "first_name", "last_name", "email", "phone", "status", "registered_at"}

// ExportFilename is the download name for an event's export.
func ExportFilename(eventID int64) string {
	return fmt.Sprintf("registrations_event_%d.csv", eventID)
}

// WriteCSV writes the header and one line per registration. Timestamps are RFC 3339 in UTC.
func WriteCSV(w io.Writer, list []models.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for i := range list {
		r := &list[i]
		if err := cw.Write([]string{
			r.ID.String(),
			r.FirstName,
			r.LastName,
			r.Email,
			r.Phone,
			string(r.Status),
			r.RegisteredAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes every registration of an event, all statuses, in registration order.
func (s *Service) ExportCSV(ctx context.Context, eventID int64, w io.Writer) error {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if isEventNotFound(err) {
			return ErrEventNotFound
		}
		return storageErr("load event", err)
	}
	list, err := s.store.ListByEvent(ctx, eventID, "")
	if err != nil {
		return storageErr("export", err)
	}
	return WriteCSV(w, list)
}
