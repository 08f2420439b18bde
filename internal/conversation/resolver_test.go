package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiledesk/patient-portal/internal/clinic"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.reply}, nil
}

func newTestResolver(llm LLMClient) *Resolver {
	return NewResolver(llm, "test-model", nil).WithNow(parseClock)
}

func TestResolveUsesOracleVerdict(t *testing.T) {
	llm := &stubLLM{reply: `{"intent":"book","confidence":0.92,"date":"2026-09-10","time":"14:00"}`}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "hi, I need an appointment"})

	assert.Equal(t, IntentBook, res.Intent)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, "2026-09-10", res.Entities.Date)
	assert.Equal(t, "14:00", res.Entities.Time)
	assert.Equal(t, "oracle", res.Source)
	assert.Equal(t, 1, llm.calls)
}

func TestResolveStripsCodeFence(t *testing.T) {
	llm := &stubLLM{reply: "```json\n{\"intent\":\"cancel\",\"confidence\":0.8}\n```"}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "cancel it"})

	assert.Equal(t, IntentCancel, res.Intent)
	assert.Equal(t, "oracle", res.Source)
}

func TestResolveDiscardsPastOracleDate(t *testing.T) {
	// Clock is 2026-09-01; the oracle hallucinates a date in the past.
	llm := &stubLLM{reply: `{"intent":"book","confidence":0.9,"date":"2026-08-15","time":"15:00"}`}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "book me tomorrow at 3pm"})

	assert.Equal(t, "2026-09-02", res.Entities.Date, "date must be re-derived from the message")
	assert.Equal(t, "15:00", res.Entities.Time)
}

func TestResolveDiscardsMalformedOracleTime(t *testing.T) {
	llm := &stubLLM{reply: `{"intent":"book","confidence":0.9,"time":"3 o'clock"}`}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "book me at 3:30 pm"})

	assert.Equal(t, "15:30", res.Entities.Time)
}

func TestResolveFallsBackOnOracleError(t *testing.T) {
	llm := &stubLLM{err: errors.New("throttled")}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "please cancel my appointment tomorrow"})

	assert.Equal(t, IntentCancel, res.Intent)
	assert.Equal(t, "2026-09-02", res.Entities.Date)
	assert.Equal(t, "fallback", res.Source)
}

func TestResolveFallsBackOnNonJSONReply(t *testing.T) {
	llm := &stubLLM{reply: "Sure, happy to help with that!"}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{Message: "I want to book a cleaning next monday"})

	assert.Equal(t, IntentBook, res.Intent)
	assert.Equal(t, "2026-09-07", res.Entities.Date)
	assert.Equal(t, "fallback", res.Source)
}

func TestResolveMatchesServiceAndDentistByName(t *testing.T) {
	cleaning := clinic.Service{ID: uuid.New(), Name: "Teeth Cleaning", DurationMinutes: 30}
	garcia := clinic.Dentist{ID: uuid.New(), Name: "Dr. Garcia", Specialty: "general"}

	llm := &stubLLM{reply: `{"intent":"book","confidence":0.9,"serviceName":"teeth cleaning","dentistName":"Dr. Garcia"}`}
	res := newTestResolver(llm).Resolve(context.Background(), ResolveInput{
		Message:  "cleaning with dr. garcia please",
		Services: []clinic.Service{cleaning},
		Dentists: []clinic.Dentist{garcia},
	})

	require.NotNil(t, res.Entities.ServiceID)
	require.NotNil(t, res.Entities.DentistID)
	assert.Equal(t, cleaning.ID, *res.Entities.ServiceID)
	assert.Equal(t, garcia.ID, *res.Entities.DentistID)
}

func TestResolveDeterministicSpanish(t *testing.T) {
	res := newTestResolver(nil).Resolve(context.Background(), ResolveInput{
		Message:  "quiero cancelar mi cita de mañana",
		Language: "es",
	})

	assert.Equal(t, IntentCancel, res.Intent)
	assert.Equal(t, "2026-09-02", res.Entities.Date)
}

func TestResolveDeterministicAppointmentRef(t *testing.T) {
	apptID := uuid.New()
	res := newTestResolver(nil).Resolve(context.Background(), ResolveInput{
		Message: "cancel ref " + apptID.String(),
	})

	assert.Equal(t, IntentCancel, res.Intent)
	require.NotNil(t, res.Entities.AppointmentID)
	assert.Equal(t, apptID, *res.Entities.AppointmentID)
}
