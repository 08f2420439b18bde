package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/clinic"
)

// DayLister loads the non-cancelled appointments for one calendar day,
// optionally narrowed to a single dentist.
type DayLister interface {
	ListDay(ctx context.Context, date string, dentistID *uuid.UUID) ([]Appointment, error)
}

// Availability is the result of a slot computation for one date.
type Availability struct {
	Available bool     `json:"available"`
	Slots     []string `json:"slots"`
}

// Engine derives bookable slots from business hours and booked appointments.
// It is the single source of truth for "is this slot free": the booking
// service and the waitlist reconciler both go through it.
type Engine struct {
	hours    clinic.BusinessHours
	appts    DayLister
	interval int
	loc      *time.Location
	now      func() time.Time
}

// NewEngine creates an availability engine with a 30-minute grid.
func NewEngine(hours clinic.BusinessHours, appts DayLister) *Engine {
	return &Engine{
		hours:    hours,
		appts:    appts,
		interval: 30,
		loc:      time.UTC,
		now:      time.Now,
	}
}

// WithInterval overrides the slot grid granularity in minutes.
func (e *Engine) WithInterval(minutes int) *Engine {
	if minutes > 0 {
		e.interval = minutes
	}
	return e
}

// WithLocation sets the clinic timezone used for same-day pruning.
func (e *Engine) WithLocation(loc *time.Location) *Engine {
	if loc != nil {
		e.loc = loc
	}
	return e
}

// WithNow overrides the wall clock, for tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Interval returns the grid granularity in minutes.
func (e *Engine) Interval() int {
	return e.interval
}

// ComputeSlots loads the day's appointments and returns the free slots.
func (e *Engine) ComputeSlots(ctx context.Context, date string, dentistID *uuid.UUID) (Availability, error) {
	if _, err := ParseDate(date); err != nil {
		return Availability{}, err
	}

	appts, err := e.appts.ListDay(ctx, date, dentistID)
	if err != nil {
		return Availability{}, fmt.Errorf("scheduling: load day appointments: %w", err)
	}
	return e.FreeSlots(date, appts)
}

// FreeSlots computes the free slots for a date against an already-loaded
// appointment set. The booking service calls this with the rows it holds
// locked so that validation and commit see the same calendar.
func (e *Engine) FreeSlots(date string, appts []Appointment) (Availability, error) {
	day, err := ParseDate(date)
	if err != nil {
		return Availability{}, err
	}

	window, open := e.hours.ForDate(day)
	if !open {
		return Availability{Available: false, Slots: []string{}}, nil
	}

	openMin, err := ParseSlotTime(window.Open)
	if err != nil {
		return Availability{}, err
	}
	closeMin, err := ParseSlotTime(window.Close)
	if err != nil {
		return Availability{}, err
	}

	occupied := e.occupiedIndexes(openMin, appts)

	cutoff := -1
	if now := e.now().In(e.loc); now.Format(DateLayout) == date {
		// Same-day requests cannot target slots at or before the current time.
		cutoff = now.Hour()*60 + now.Minute()
	}

	var slots []string
	for m := openMin; m+e.interval <= closeMin; m += e.interval {
		if occupied[(m-openMin)/e.interval] {
			continue
		}
		if cutoff >= 0 && m <= cutoff {
			continue
		}
		slots = append(slots, minutesToSlot(m))
	}
	if slots == nil {
		slots = []string{}
	}
	return Availability{Available: len(slots) > 0, Slots: slots}, nil
}

// SlotSpan returns the grid slots an appointment starting at t with the
// given duration covers: ceil(duration/interval) consecutive entries.
// A booking is valid only when every one of them is free, which also
// keeps it from running past closing time.
func (e *Engine) SlotSpan(t string, durationMinutes int) ([]string, error) {
	start, err := ParseSlotTime(t)
	if err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = e.interval
	}
	count := (durationMinutes + e.interval - 1) / e.interval
	slots := make([]string, 0, count)
	for i := 0; i < count; i++ {
		slots = append(slots, minutesToSlot(start+i*e.interval))
	}
	return slots, nil
}

// occupiedIndexes marks the grid indexes covered by each appointment.
// An appointment of duration d occupies ceil(d/interval) consecutive slots
// starting at its own time.
func (e *Engine) occupiedIndexes(openMin int, appts []Appointment) map[int]bool {
	occupied := make(map[int]bool)
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		start, err := ParseSlotTime(a.Time)
		if err != nil {
			continue
		}
		duration := a.DurationMinutes
		if duration <= 0 {
			duration = e.interval
		}
		span := (duration + e.interval - 1) / e.interval
		first := (start - openMin) / e.interval
		for i := 0; i < span; i++ {
			occupied[first+i] = true
		}
	}
	return occupied
}
