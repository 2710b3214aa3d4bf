package maintenance

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/5w1tchy/folio-api/internal/models"
)

// PendingLister finds books that still have no content.
type PendingLister interface {
	ListPending(ctx context.Context, cutoff time.Time) ([]models.Book, error)
}

// StartPendingReport runs a daily job at localTime ("HH:MM") in tzName that
// logs books created more than `after` ago which never received content.
// Nothing is deleted; the report is for operators.
// Call once at startup: maintenance.StartPendingReport(ctx, catalog, 24*time.Hour, "03:00", "UTC")
func StartPendingReport(ctx context.Context, lister PendingLister, after time.Duration, localTime, tzName string) {
	if after <= 0 {
		after = 24 * time.Hour
	}
	go func() {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			loc = time.Local
		}
		h, m := parseClock(localTime)

		for {
			timer := time.NewTimer(time.Until(nextRun(time.Now().In(loc), h, m)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				_, _ = ReportPending(ctx, lister, time.Now().Add(-after))
			}
		}
	}()
}

// ReportPending logs every book created before cutoff that is still pending
// and returns them.
func ReportPending(ctx context.Context, lister PendingLister, cutoff time.Time) ([]models.Book, error) {
	books, err := lister.ListPending(ctx, cutoff)
	if err != nil {
		log.Printf("[pending] listing pending books failed: %v", err)
		return nil, err
	}
	if len(books) == 0 {
		log.Printf("[pending] no books pending since before %s", cutoff.Format(time.RFC3339))
		return nil, nil
	}
	for _, b := range books {
		log.Printf("[pending] book %s %q created %s has no content", b.ID, b.Title, b.CreatedAt.Format(time.RFC3339))
	}
	log.Printf("[pending] %d books pending since before %s", len(books), cutoff.Format(time.RFC3339))
	return books, nil
}

func parseClock(s string) (h, m int) {
	h, m = 3, 0
	if parts := strings.Split(s, ":"); len(parts) == 2 {
		if v, err := strconv.Atoi(parts[0]); err == nil && v >= 0 && v < 24 {
			h = v
		}
		if v, err := strconv.Atoi(parts[1]); err == nil && v >= 0 && v < 60 {
			m = v
		}
	}
	return h, m
}

// nextRun is the first h:m strictly after now, in now's location.
func nextRun(now time.Time, h, m int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
