package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/notify"
	"github.com/smiledesk/patient-portal/internal/observability/metrics"
	"github.com/smiledesk/patient-portal/internal/redislock"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

const scanLockName = "waitlist:scan"

// EntryStore is the repository surface the reconciler needs.
type EntryStore interface {
	ListActive(ctx context.Context, fromDate string, limit int) ([]Entry, error)
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AvailabilityProvider is the single capacity oracle, shared with the
// booking flow.
type AvailabilityProvider interface {
	ComputeSlots(ctx context.Context, date string, dentistID *uuid.UUID) (scheduling.Availability, error)
}

// Booker books through the same transactional core the dialogue uses.
type Booker interface {
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error)
}

// Notifier resolves channel preferences and fans out patient alerts.
type Notifier interface {
	Preferences(ctx context.Context, patientID uuid.UUID) (notify.Preferences, error)
	NotifyWaitlistOpening(ctx context.Context, patientID uuid.UUID, date string, slots []string) error
	NotifyBookingConfirmed(ctx context.Context, patientID uuid.UUID, appt *scheduling.Appointment) error
}

// EntryResult records what happened to one entry during a scan.
type EntryResult struct {
	EntryID uuid.UUID `json:"entry_id"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

// Summary is the result of one reconciliation scan.
type Summary struct {
	Processed  int           `json:"processed"`
	Notified   int           `json:"notified"`
	AutoBooked int           `json:"auto_booked"`
	Errors     []string      `json:"errors,omitempty"`
	Details    []EntryResult `json:"details,omitempty"`
}

const (
	outcomeNotified   = "notified"
	outcomeConverted  = "converted"
	outcomeNoCapacity = "skipped_no_capacity"
	outcomeNoChannels = "skipped_no_channels"
	outcomeError      = "error"
)

// Reconciler scans active waitlist entries on a timer and turns opened
// capacity into notifications or auto-bookings. One entry's failure
// never stops the rest of the scan.
type Reconciler struct {
	entries      EntryStore
	availability AvailabilityProvider
	booker       Booker
	notifier     Notifier
	locker       redislock.Locker
	logger       *logging.Logger
	metrics      *metrics.WaitlistMetrics
	interval     time.Duration
	batchSize    int
	now          func() time.Time
	loc          *time.Location
}

func NewReconciler(
	entries EntryStore,
	availability AvailabilityProvider,
	booker Booker,
	notifier Notifier,
	logger *logging.Logger,
) *Reconciler {
	if entries == nil {
		panic("waitlist: reconciler requires an entry store")
	}
	if availability == nil {
		panic("waitlist: reconciler requires an availability provider")
	}
	if booker == nil {
		panic("waitlist: reconciler requires a booker")
	}
	if notifier == nil {
		panic("waitlist: reconciler requires a notifier")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		entries:      entries,
		availability: availability,
		booker:       booker,
		notifier:     notifier,
		logger:       logger,
		interval:     5 * time.Minute,
		batchSize:    50,
		now:          time.Now,
		loc:          time.UTC,
	}
}

// WithLocker installs a cross-process run lock so overlapping timer
// firings or multiple workers never double-scan.
func (r *Reconciler) WithLocker(l redislock.Locker) *Reconciler {
	r.locker = l
	return r
}

func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Reconciler) WithBatchSize(n int) *Reconciler {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Reconciler) WithMetrics(m *metrics.WaitlistMetrics) *Reconciler {
	r.metrics = m
	return r
}

func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *Reconciler) WithLocation(loc *time.Location) *Reconciler {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Run scans on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("waitlist reconciler started", "interval", r.interval.String(), "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("waitlist reconciler stopped")
			return
		case <-ticker.C:
			summary, err := r.Scan(ctx)
			if err != nil {
				r.logger.Error("waitlist scan failed", "error", err.Error())
				continue
			}
			if summary.Processed > 0 {
				r.logger.Info("waitlist scan complete",
					"processed", summary.Processed,
					"notified", summary.Notified,
					"auto_booked", summary.AutoBooked,
					"errors", len(summary.Errors),
				)
			}
		}
	}
}

// Scan runs one reconciliation pass under the cross-process lock. A lock
// miss means another worker is already scanning and is a clean no-op.
func (r *Reconciler) Scan(ctx context.Context) (Summary, error) {
	if r.locker == nil {
		return r.ProcessActiveEntries(ctx)
	}

	var summary Summary
	err := r.locker.WithLock(ctx, scanLockName, func(ctx context.Context) error {
		var err error
		summary, err = r.ProcessActiveEntries(ctx)
		return err
	})
	if errors.Is(err, redislock.ErrNotAcquired) {
		r.logger.Debug("waitlist scan already running elsewhere")
		return Summary{}, nil
	}
	return summary, err
}

// ProcessActiveEntries examines every active, not-yet-expired entry and
// applies the active→notified / active→converted transitions.
func (r *Reconciler) ProcessActiveEntries(ctx context.Context) (Summary, error) {
	r.metrics.ObserveRun()
	today := r.now().In(r.loc).Format(scheduling.DateLayout)

	entries, err := r.entries.ListActive(ctx, today, r.batchSize)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Processed: len(entries)}
	for _, entry := range entries {
		result := r.processEntry(ctx, entry)
		summary.Details = append(summary.Details, result)
		r.metrics.ObserveEntry(result.Outcome)

		switch result.Outcome {
		case outcomeNotified:
			summary.Notified++
		case outcomeConverted:
			summary.AutoBooked++
		case outcomeError:
			summary.Errors = append(summary.Errors, fmt.Sprintf("entry %s: %s", entry.ID, result.Detail))
		}
	}
	return summary, nil
}

func (r *Reconciler) processEntry(ctx context.Context, entry Entry) EntryResult {
	result := EntryResult{EntryID: entry.ID}

	avail, err := r.availability.ComputeSlots(ctx, entry.PreferredDate, entry.DentistID)
	if err != nil {
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("availability check: %v", err)
		return result
	}

	// Exact-slot check when the patient named a time, otherwise any
	// opening on the day counts.
	if !avail.Available || len(avail.Slots) == 0 {
		result.Outcome = outcomeNoCapacity
		return result
	}
	if entry.PreferredTime != "" && !containsSlot(avail.Slots, entry.PreferredTime) {
		result.Outcome = outcomeNoCapacity
		return result
	}

	prefs, err := r.notifier.Preferences(ctx, entry.PatientID)
	if err != nil {
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("preference lookup: %v", err)
		return result
	}
	if !prefs.AnyEnabled() {
		// The entry stays active so the patient is not silently
		// stranded once they enable a channel.
		r.logger.Warn("waitlist entry has no enabled notification channel",
			"entry_id", entry.ID.String(), "patient_id", entry.PatientID.String())
		result.Outcome = outcomeNoChannels
		return result
	}

	if entry.AutoBook && entry.PreferredTime != "" {
		return r.autoBook(ctx, entry, result)
	}
	return r.notifyOpening(ctx, entry, avail.Slots, result)
}

func (r *Reconciler) autoBook(ctx context.Context, entry Entry, result EntryResult) EntryResult {
	appt, err := r.booker.Book(ctx, scheduling.BookRequest{
		PatientID: entry.PatientID,
		Date:      entry.PreferredDate,
		Time:      entry.PreferredTime,
		ServiceID: entry.ServiceID,
		DentistID: entry.DentistID,
		Notes:     "Booked automatically from waitlist",
	})
	if err != nil {
		// Another caller may have claimed the slot between the
		// availability check and the booking transaction. The entry
		// stays active for the next scan.
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("auto-book: %v", err)
		return result
	}

	if err := r.notifier.NotifyBookingConfirmed(ctx, entry.PatientID, appt); err != nil {
		r.logger.Error("waitlist auto-book confirmation failed",
			"entry_id", entry.ID.String(), "error", err.Error())
	}

	// The booking is committed; the terminal transition must follow
	// even if the confirmation could not be delivered.
	if err := r.entries.MarkConverted(ctx, entry.ID, r.now()); err != nil {
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("mark converted: %v", err)
		return result
	}
	result.Outcome = outcomeConverted
	return result
}

func (r *Reconciler) notifyOpening(ctx context.Context, entry Entry, slots []string, result EntryResult) EntryResult {
	offered := slots
	if entry.PreferredTime != "" {
		offered = []string{entry.PreferredTime}
	}
	if err := r.notifier.NotifyWaitlistOpening(ctx, entry.PatientID, entry.PreferredDate, offered); err != nil {
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("notify: %v", err)
		return result
	}
	if err := r.entries.MarkNotified(ctx, entry.ID, r.now()); err != nil {
		result.Outcome = outcomeError
		result.Detail = fmt.Sprintf("mark notified: %v", err)
		return result
	}
	result.Outcome = outcomeNotified
	return result
}

func containsSlot(slots []string, t string) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}
