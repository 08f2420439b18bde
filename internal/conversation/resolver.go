package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/clinic"
	"github.com/smiledesk/patient-portal/internal/observability/metrics"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// Intent is the classified purpose of a patient message.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentCancel     Intent = "cancel"
	IntentReschedule Intent = "reschedule"
	IntentHistory    Intent = "history"
	IntentQuestion   Intent = "question"
	IntentUnknown    Intent = "unknown"
)

const (
	resolutionSourceOracle   = "oracle"
	resolutionSourceFallback = "fallback"
)

// Entities is the partial entity set extracted from one message.
type Entities struct {
	Date          string
	Time          string
	ServiceID     *uuid.UUID
	DentistID     *uuid.UUID
	AppointmentID *uuid.UUID
}

// Resolution is the resolver's verdict for one turn.
type Resolution struct {
	Intent     Intent
	Confidence float64
	Entities   Entities
	Source     string
}

// ResolveInput carries one user message plus the context the oracle may
// ground names against.
type ResolveInput struct {
	Message     string
	RecentTurns []ChatMessage
	Services    []clinic.Service
	Dentists    []clinic.Dentist
	Language    string
}

// Resolver turns free text into a typed intent and entities. The LLM
// oracle does the heavy lifting when available; its output is advisory
// and every field is re-validated. With a nil client the resolver runs
// purely on the deterministic parser.
type Resolver struct {
	llm     LLMClient
	model   string
	logger  *logging.Logger
	metrics *metrics.ResolverMetrics
	now     func() time.Time
	loc     *time.Location
}

func NewResolver(llm LLMClient, model string, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		llm:    llm,
		model:  model,
		logger: logger,
		now:    time.Now,
		loc:    time.UTC,
	}
}

func (r *Resolver) WithMetrics(m *metrics.ResolverMetrics) *Resolver {
	r.metrics = m
	return r
}

func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *Resolver) WithLocation(loc *time.Location) *Resolver {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Resolve classifies the message and extracts entities. It never returns
// an error for oracle trouble; it degrades to the deterministic parser
// so a turn always terminates.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) Resolution {
	if r.llm != nil {
		res, err := r.resolveWithOracle(ctx, in)
		if err == nil {
			r.metrics.ObserveIntent(string(res.Intent), resolutionSourceOracle)
			return res
		}
		r.logger.Warn("oracle resolution failed, using deterministic parser", "error", err.Error())
		r.metrics.ObserveOracleFallback()
	}

	res := r.resolveDeterministic(in)
	r.metrics.ObserveIntent(string(res.Intent), resolutionSourceFallback)
	return res
}

type oracleVerdict struct {
	Intent        string  `json:"intent"`
	Confidence    float64 `json:"confidence"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	ServiceID     string  `json:"serviceId"`
	ServiceName   string  `json:"serviceName"`
	DentistID     string  `json:"dentistId"`
	DentistName   string  `json:"dentistName"`
	AppointmentID string  `json:"appointmentId"`
}

func (r *Resolver) resolveWithOracle(ctx context.Context, in ResolveInput) (Resolution, error) {
	messages := make([]ChatMessage, 0, len(in.RecentTurns)+1)
	messages = append(messages, in.RecentTurns...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Message})

	resp, err := r.llm.Complete(ctx, LLMRequest{
		Model:       r.model,
		System:      []string{r.systemPrompt(in)},
		Messages:    messages,
		MaxTokens:   512,
		Temperature: 0.1,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("conversation: oracle completion: %w", err)
	}

	var verdict oracleVerdict
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &verdict); err != nil {
		return Resolution{}, fmt.Errorf("conversation: oracle returned non-JSON verdict: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(verdict.Intent)))
	switch intent {
	case IntentBook, IntentCancel, IntentReschedule, IntentHistory, IntentQuestion:
	default:
		intent = IntentUnknown
	}

	res := Resolution{
		Intent:     intent,
		Confidence: verdict.Confidence,
		Source:     resolutionSourceOracle,
	}
	res.Entities = r.validateOracleEntities(verdict, in)
	return res, nil
}

// validateOracleEntities intersects the oracle's claims with the
// deterministic parser. Dates before today and malformed fields are
// discarded and re-derived from the raw message.
func (r *Resolver) validateOracleEntities(verdict oracleVerdict, in ResolveInput) Entities {
	var ents Entities
	today := r.now().In(r.loc).Format(scheduling.DateLayout)

	if verdict.Date != "" {
		if _, err := scheduling.ParseDate(verdict.Date); err != nil {
			r.logger.Warn("oracle produced malformed date, discarding", "date", verdict.Date)
		} else if verdict.Date < today {
			r.logger.Warn("oracle produced past date, discarding", "date", verdict.Date)
		} else {
			ents.Date = verdict.Date
		}
	}
	if ents.Date == "" {
		if d, ok := ParseDateExpression(in.Message, r.now(), r.loc); ok {
			ents.Date = d
		}
	}

	if verdict.Time != "" {
		if _, err := scheduling.ParseSlotTime(verdict.Time); err == nil {
			ents.Time = verdict.Time
		} else {
			r.logger.Warn("oracle produced malformed time, discarding", "time", verdict.Time)
		}
	}
	if ents.Time == "" {
		if t, ok := ParseTimeExpression(in.Message); ok {
			ents.Time = t
		}
	}

	ents.ServiceID = resolveServiceRef(verdict.ServiceID, verdict.ServiceName, in.Services)
	ents.DentistID = resolveDentistRef(verdict.DentistID, verdict.DentistName, in.Dentists)
	if id, err := uuid.Parse(verdict.AppointmentID); err == nil {
		ents.AppointmentID = &id
	}
	if ents.AppointmentID == nil {
		ents.AppointmentID = parseUUIDRef(in.Message)
	}
	return ents
}

func (r *Resolver) resolveDeterministic(in ResolveInput) Resolution {
	res := Resolution{
		Intent:     classifyKeywords(in.Message),
		Confidence: 0.5,
		Source:     resolutionSourceFallback,
	}
	if d, ok := ParseDateExpression(in.Message, r.now(), r.loc); ok {
		res.Entities.Date = d
	}
	if t, ok := ParseTimeExpression(in.Message); ok {
		res.Entities.Time = t
	}
	res.Entities.ServiceID = resolveServiceRef("", in.Message, in.Services)
	res.Entities.DentistID = resolveDentistRef("", in.Message, in.Dentists)
	res.Entities.AppointmentID = parseUUIDRef(in.Message)
	return res
}

var uuidRefRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// parseUUIDRef picks up an appointment reference the patient pasted back
// from an earlier listing.
func parseUUIDRef(text string) *uuid.UUID {
	match := uuidRefRe.FindString(text)
	if match == "" {
		return nil
	}
	id, err := uuid.Parse(match)
	if err != nil {
		return nil
	}
	return &id
}

func (r *Resolver) systemPrompt(in ResolveInput) string {
	var sb strings.Builder
	sb.WriteString("You are the scheduling assistant for a dental clinic. ")
	sb.WriteString("Classify the patient's latest message and extract scheduling entities. ")
	sb.WriteString("Respond with a single JSON object and nothing else, using these keys: ")
	sb.WriteString(`{"intent":"book|cancel|reschedule|history|question","confidence":0.0,` +
		`"date":"YYYY-MM-DD","time":"HH:MM","serviceName":"","dentistName":"","appointmentId":""}. `)
	sb.WriteString("Omit or leave empty any field not present in the message. ")
	sb.WriteString(fmt.Sprintf("Today's date is %s. ", r.now().In(r.loc).Format(scheduling.DateLayout)))

	if len(in.Services) > 0 {
		names := make([]string, 0, len(in.Services))
		for _, s := range in.Services {
			names = append(names, s.Name)
		}
		sb.WriteString("Known services: " + strings.Join(names, ", ") + ". ")
	}
	if len(in.Dentists) > 0 {
		names := make([]string, 0, len(in.Dentists))
		for _, d := range in.Dentists {
			names = append(names, d.Name)
		}
		sb.WriteString("Known dentists: " + strings.Join(names, ", ") + ". ")
	}
	if in.Language != "" {
		sb.WriteString("The patient writes in " + in.Language + ". ")
	}
	return sb.String()
}

func classifyKeywords(message string) Intent {
	norm := normalizeText(message)
	has := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(norm, t) {
				return true
			}
		}
		return false
	}

	switch {
	case has("reschedul", "move my", "change my", "reagendar", "cambiar mi"):
		return IntentReschedule
	case has("cancel", "cancelar"):
		return IntentCancel
	case has("history", "my appointments", "upcoming", "historial", "mis citas"):
		return IntentHistory
	case has("book", "schedule", "appointment", "agendar", "reservar", "cita"):
		return IntentBook
	case has("available", "availability", "open", "slots", "disponib", "horario"):
		return IntentQuestion
	default:
		return IntentUnknown
	}
}

func resolveServiceRef(id, name string, services []clinic.Service) *uuid.UUID {
	if parsed, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
		return &parsed
	}
	norm := normalizeText(name)
	if norm == "" {
		return nil
	}
	for _, svc := range services {
		if strings.Contains(norm, normalizeText(svc.Name)) {
			id := svc.ID
			return &id
		}
	}
	return nil
}

func resolveDentistRef(id, name string, dentists []clinic.Dentist) *uuid.UUID {
	if parsed, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
		return &parsed
	}
	norm := normalizeText(name)
	if norm == "" {
		return nil
	}
	for _, d := range dentists {
		dn := normalizeText(d.Name)
		if dn != "" && strings.Contains(norm, dn) {
			id := d.ID
			return &id
		}
	}
	return nil
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
