package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/clinic"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// Scheduler is the booking transaction core as the driver sees it.
type Scheduler interface {
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, patientID, appointmentID uuid.UUID, reason string) (*scheduling.Appointment, error)
	Reschedule(ctx context.Context, patientID, appointmentID uuid.UUID, newDate, newTime string) (*scheduling.Appointment, error)
	History(ctx context.Context, patientID uuid.UUID) ([]scheduling.Appointment, error)
}

// AvailabilityProvider is the single source of truth for open slots.
type AvailabilityProvider interface {
	ComputeSlots(ctx context.Context, date string, dentistID *uuid.UUID) (scheduling.Availability, error)
}

// TurnRequest is one inbound patient message.
type TurnRequest struct {
	ConversationID uuid.UUID
	PatientID      uuid.UUID
	Message        string
	Language       string
}

// TurnResponse is the assistant's reply plus whatever the turn produced.
type TurnResponse struct {
	Reply       string
	State       *ConversationState
	Appointment *scheduling.Appointment
	Slots       []string
}

const recentTurnLimit = 10

// Driver runs one dialogue turn end to end: scope filter, resolution,
// state merge, and dispatch into availability and booking. Every turn
// terminates with a reply; missing information produces a question, not
// a hang.
type Driver struct {
	filter       *ScopeFilter
	resolver     *Resolver
	states       StateStore
	log          MessageLog
	scheduler    Scheduler
	availability AvailabilityProvider
	catalog      clinic.Catalog
	logger       *logging.Logger
	now          func() time.Time
	loc          *time.Location
}

func NewDriver(
	resolver *Resolver,
	states StateStore,
	log MessageLog,
	scheduler Scheduler,
	availability AvailabilityProvider,
	logger *logging.Logger,
) *Driver {
	if resolver == nil {
		panic("conversation: driver requires a resolver")
	}
	if states == nil {
		panic("conversation: driver requires a state store")
	}
	if scheduler == nil {
		panic("conversation: driver requires a scheduler")
	}
	if availability == nil {
		panic("conversation: driver requires an availability provider")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Driver{
		filter:       NewScopeFilter(),
		resolver:     resolver,
		states:       states,
		log:          log,
		scheduler:    scheduler,
		availability: availability,
		logger:       logger,
		now:          time.Now,
		loc:          time.UTC,
	}
}

func (d *Driver) WithCatalog(c clinic.Catalog) *Driver {
	d.catalog = c
	return d
}

func (d *Driver) WithNow(now func() time.Time) *Driver {
	if now != nil {
		d.now = now
	}
	return d
}

func (d *Driver) WithLocation(loc *time.Location) *Driver {
	if loc != nil {
		d.loc = loc
	}
	return d
}

// HandleTurn processes one patient message and returns the reply.
func (d *Driver) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("conversation: empty message")
	}

	if ensurer, ok := d.states.(interface {
		EnsureConversation(ctx context.Context, conversationID, patientID uuid.UUID) error
	}); ok {
		if err := ensurer.EnsureConversation(ctx, req.ConversationID, req.PatientID); err != nil {
			return nil, err
		}
	}
	d.appendMessage(ctx, req.ConversationID, ChatRoleUser, req.Message)

	state, err := d.states.Load(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	// An off-topic detour must not destroy an in-flight booking flow.
	if !d.filter.InScope(req.Message) {
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: RefusalMessage})
	}
	if state == nil {
		state = &ConversationState{}
	}

	res := d.resolveTurn(ctx, req, state)

	// history and availability questions answer immediately and leave
	// any in-flight flow untouched.
	switch res.Intent {
	case IntentHistory:
		resp, err := d.answerHistory(ctx, req.PatientID)
		if err != nil {
			return nil, err
		}
		return d.finishTurn(ctx, req.ConversationID, state, resp)
	case IntentQuestion:
		if state.PendingAction == "" {
			return d.answerAvailability(ctx, req, state, res.Entities)
		}
	}

	if state.PendingAction == "" {
		switch res.Intent {
		case IntentBook, IntentCancel, IntentReschedule:
			state.PendingAction = Action(res.Intent)
		default:
			reply := "I can help you book, reschedule, or cancel a dental appointment. What would you like to do?"
			return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply})
		}
	}

	state.Merge(res.Entities)

	if reply, ok := d.rejectPastDate(state); ok {
		state.RecomputeMissing()
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
	}

	if state.PendingAction == ActionCancel || state.PendingAction == ActionReschedule {
		if resp, done, err := d.resolveTargetAppointment(ctx, req.PatientID, state); err != nil {
			return nil, err
		} else if done {
			keep := state
			if resp.State == nil {
				keep = nil
			}
			return d.finishTurn(ctx, req.ConversationID, keep, resp)
		}
	}

	if !state.Complete() {
		resp, keep, err := d.askForMissing(ctx, req, state)
		if err != nil {
			return nil, err
		}
		return d.finishTurn(ctx, req.ConversationID, keep, resp)
	}

	return d.executeAction(ctx, req, state)
}

// resolveTurn prefers slot shorthand against the stored offer list over
// the oracle; "slot 2" never round-trips through the LLM.
func (d *Driver) resolveTurn(ctx context.Context, req TurnRequest, state *ConversationState) Resolution {
	if state.PendingAction != "" && len(state.AvailableSlots) > 0 {
		if slot, ok := ResolveSlotReference(req.Message, state.AvailableSlots); ok {
			return Resolution{
				Intent:     Intent(state.PendingAction),
				Confidence: 1,
				Entities:   Entities{Time: slot},
				Source:     "slot_reference",
			}
		}
	}

	in := ResolveInput{
		Message:  req.Message,
		Language: req.Language,
	}
	if d.log != nil {
		if turns, err := d.log.Recent(ctx, req.ConversationID, recentTurnLimit); err == nil {
			in.RecentTurns = turns
		} else {
			d.logger.Warn("failed to load recent turns", "error", err.Error())
		}
	}
	if d.catalog != nil {
		if services, err := d.catalog.ListServices(ctx); err == nil {
			in.Services = services
		}
		if dentists, err := d.catalog.ListDentists(ctx); err == nil {
			in.Dentists = dentists
		}
	}
	return d.resolver.Resolve(ctx, in)
}

func (d *Driver) rejectPastDate(state *ConversationState) (string, bool) {
	if state.CollectedInfo.Date == "" {
		return "", false
	}
	today := d.now().In(d.loc).Format(scheduling.DateLayout)
	if state.CollectedInfo.Date >= today {
		return "", false
	}
	past := state.CollectedInfo.Date
	state.CollectedInfo.Date = ""
	state.AvailableSlots = nil
	return fmt.Sprintf("I can't schedule anything on %s because it's in the past. What future date works for you?", past), true
}

// resolveTargetAppointment fills in the appointment a cancel or
// reschedule refers to. A single active appointment is selected
// implicitly; more than one needs an explicit pick.
func (d *Driver) resolveTargetAppointment(ctx context.Context, patientID uuid.UUID, state *ConversationState) (*TurnResponse, bool, error) {
	if state.CollectedInfo.AppointmentID != nil {
		return nil, false, nil
	}

	appts, err := d.scheduler.History(ctx, patientID)
	if err != nil {
		return nil, false, err
	}
	var active []scheduling.Appointment
	for _, a := range appts {
		if a.Active() {
			active = append(active, a)
		}
	}

	switch len(active) {
	case 0:
		reply := "You don't have any upcoming appointments on file."
		return &TurnResponse{Reply: reply}, true, nil
	case 1:
		id := active[0].ID
		state.CollectedInfo.AppointmentID = &id
		state.RecomputeMissing()
		return nil, false, nil
	default:
		var sb strings.Builder
		sb.WriteString("You have several upcoming appointments. Which one do you mean?\n")
		for i, a := range active {
			fmt.Fprintf(&sb, "%d. %s at %s (ref %s)\n", i+1, a.Date, a.Time, a.ID)
		}
		return &TurnResponse{Reply: strings.TrimRight(sb.String(), "\n"), State: state}, true, nil
	}
}

// askForMissing builds the "please provide X" reply. When only the time
// is missing and a date is known, it offers the day's open slots and
// stores them for shorthand selection next turn.
func (d *Driver) askForMissing(ctx context.Context, req TurnRequest, state *ConversationState) (*TurnResponse, *ConversationState, error) {
	missing := map[string]bool{}
	for _, f := range state.MissingInfo {
		missing[f] = true
	}

	if missing["time"] && !missing["date"] && state.CollectedInfo.Date != "" {
		avail, err := d.availability.ComputeSlots(ctx, state.CollectedInfo.Date, state.CollectedInfo.DentistID)
		if err != nil {
			return nil, nil, err
		}
		if !avail.Available || len(avail.Slots) == 0 {
			date := state.CollectedInfo.Date
			state.CollectedInfo.Date = ""
			state.AvailableSlots = nil
			state.RecomputeMissing()
			reply := fmt.Sprintf("Unfortunately there are no open times on %s. Is there another date that works?", date)
			return &TurnResponse{Reply: reply, State: state}, state, nil
		}
		state.AvailableSlots = avail.Slots
		reply := fmt.Sprintf("Here are the open times on %s:\n%s\nWhich one would you like?",
			state.CollectedInfo.Date, formatSlotList(avail.Slots))
		return &TurnResponse{Reply: reply, State: state, Slots: avail.Slots}, state, nil
	}

	if missing["date"] {
		return &TurnResponse{Reply: "What date would you like to come in?", State: state}, state, nil
	}
	return &TurnResponse{Reply: "What time would you like?", State: state}, state, nil
}

func (d *Driver) executeAction(ctx context.Context, req TurnRequest, state *ConversationState) (*TurnResponse, error) {
	switch state.PendingAction {
	case ActionBook:
		appt, err := d.scheduler.Book(ctx, scheduling.BookRequest{
			PatientID: req.PatientID,
			Date:      state.CollectedInfo.Date,
			Time:      state.CollectedInfo.Time,
			ServiceID: state.CollectedInfo.ServiceID,
			DentistID: state.CollectedInfo.DentistID,
		})
		if err != nil {
			return d.handleActionError(ctx, req, state, err, "book")
		}
		reply := fmt.Sprintf("You're all set! Your appointment is booked for %s at %s.", appt.Date, appt.Time)
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply, Appointment: appt})

	case ActionCancel:
		appt, err := d.scheduler.Cancel(ctx, req.PatientID, *state.CollectedInfo.AppointmentID, "requested via chat")
		if err != nil {
			return d.handleActionError(ctx, req, state, err, "cancel")
		}
		reply := fmt.Sprintf("Your appointment on %s at %s has been cancelled.", appt.Date, appt.Time)
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply, Appointment: appt})

	case ActionReschedule:
		appt, err := d.scheduler.Reschedule(ctx, req.PatientID, *state.CollectedInfo.AppointmentID,
			state.CollectedInfo.Date, state.CollectedInfo.Time)
		if err != nil {
			return d.handleActionError(ctx, req, state, err, "reschedule")
		}
		reply := fmt.Sprintf("Done! Your appointment has been moved to %s at %s.", appt.Date, appt.Time)
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply, Appointment: appt})
	}
	return nil, fmt.Errorf("conversation: unknown pending action %q", state.PendingAction)
}

// handleActionError turns booking-core failures into conversational
// recoveries. Slot conflicts re-open the time question with the fresh
// remediation list; terminal failures clear the flow.
func (d *Driver) handleActionError(ctx context.Context, req TurnRequest, state *ConversationState, err error, verb string) (*TurnResponse, error) {
	var slotErr *scheduling.SlotUnavailableError
	if errors.As(err, &slotErr) {
		state.CollectedInfo.Time = ""
		state.AvailableSlots = slotErr.Slots
		state.RecomputeMissing()
		if len(slotErr.Slots) == 0 {
			date := state.CollectedInfo.Date
			state.CollectedInfo.Date = ""
			state.AvailableSlots = nil
			state.RecomputeMissing()
			reply := fmt.Sprintf("Sorry, there's nothing open on %s anymore. Is there another date that works?", date)
			return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
		}
		reply := fmt.Sprintf("Sorry, %s is no longer available on %s. These times are still open:\n%s\nWhich one would you like?",
			slotErr.Requested, slotErr.Date, formatSlotList(slotErr.Slots))
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state, Slots: slotErr.Slots})
	}

	var dupErr *scheduling.DuplicateConflictError
	if errors.As(err, &dupErr) {
		reply := fmt.Sprintf("You already have that appointment booked on %s at %s, so I haven't created another one.",
			dupErr.Existing.Date, dupErr.Existing.Time)
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply})
	}

	var valErr *scheduling.ValidationError
	if errors.As(err, &valErr) {
		state.CollectedInfo.Date = ""
		state.CollectedInfo.Time = ""
		state.AvailableSlots = nil
		state.RecomputeMissing()
		reply := fmt.Sprintf("That doesn't look right: %s. Could you give me a different date and time?", valErr.Reason)
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
	}

	switch {
	case errors.Is(err, scheduling.ErrAlreadyCancelled):
		reply := "That appointment has already been cancelled."
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply})
	case errors.Is(err, scheduling.ErrNotFound):
		reply := "I couldn't find that appointment under your account."
		return d.finishTurn(ctx, req.ConversationID, nil, &TurnResponse{Reply: reply})
	}

	d.logger.Error("scheduling operation failed", "operation", verb, "error", err.Error())
	return nil, err
}

func (d *Driver) answerHistory(ctx context.Context, patientID uuid.UUID) (*TurnResponse, error) {
	appts, err := d.scheduler.History(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return &TurnResponse{Reply: "You don't have any appointments on file yet."}, nil
	}

	var sb strings.Builder
	sb.WriteString("Here are your appointments:\n")
	for i, a := range appts {
		fmt.Fprintf(&sb, "%d. %s at %s (%s)\n", i+1, a.Date, a.Time, a.Status)
	}
	return &TurnResponse{Reply: strings.TrimRight(sb.String(), "\n")}, nil
}

// answerAvailability handles a standalone "what's open on X" question by
// offering slots and opening a booking flow around them.
func (d *Driver) answerAvailability(ctx context.Context, req TurnRequest, state *ConversationState, ents Entities) (*TurnResponse, error) {
	state.PendingAction = ActionBook
	state.Merge(ents)
	if state.CollectedInfo.Date == "" {
		state.RecomputeMissing()
		reply := "Which date would you like to check availability for?"
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
	}

	if reply, ok := d.rejectPastDate(state); ok {
		state.RecomputeMissing()
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
	}

	avail, err := d.availability.ComputeSlots(ctx, state.CollectedInfo.Date, state.CollectedInfo.DentistID)
	if err != nil {
		return nil, err
	}
	if !avail.Available || len(avail.Slots) == 0 {
		reply := fmt.Sprintf("There are no open times on %s. Would you like to try another date?", state.CollectedInfo.Date)
		state.CollectedInfo.Date = ""
		state.RecomputeMissing()
		return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state})
	}

	state.AvailableSlots = avail.Slots
	state.RecomputeMissing()
	reply := fmt.Sprintf("These times are open on %s:\n%s\nWould you like to book one?",
		state.CollectedInfo.Date, formatSlotList(avail.Slots))
	return d.finishTurn(ctx, req.ConversationID, state, &TurnResponse{Reply: reply, State: state, Slots: avail.Slots})
}

// finishTurn persists the post-turn state (nil clears it) and appends
// the assistant reply to the transcript.
func (d *Driver) finishTurn(ctx context.Context, conversationID uuid.UUID, state *ConversationState, resp *TurnResponse) (*TurnResponse, error) {
	if err := d.states.Save(ctx, conversationID, state); err != nil {
		return nil, err
	}
	resp.State = state
	d.appendMessage(ctx, conversationID, ChatRoleAssistant, resp.Reply)
	return resp, nil
}

func (d *Driver) appendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) {
	if d.log == nil {
		return
	}
	if err := d.log.Append(ctx, conversationID, role, content); err != nil {
		d.logger.Warn("failed to append transcript message", "role", role, "error", err.Error())
	}
}

func formatSlotList(slots []string) string {
	var sb strings.Builder
	for i, slot := range slots {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, slot)
	}
	return strings.TrimRight(sb.String(), "\n")
}
