package conversation

import "strings"

// RefusalMessage is the fixed reply for anything outside appointment
// scheduling. Kept constant so out-of-scope probing never leaks varied
// model output.
const RefusalMessage = "I can only help with scheduling, rescheduling, or cancelling dental appointments. How can I help you with your appointment?"

// ScopeFilter screens messages before they reach the oracle. Deny terms
// name topics the portal must never engage with; allow terms mark clear
// scheduling intent that overrides an incidental deny hit.
type ScopeFilter struct {
	allowTerms []string
	denyTerms  []string
}

func NewScopeFilter() *ScopeFilter {
	return &ScopeFilter{
		allowTerms: []string{
			"appointment", "appointments", "book", "booking", "schedule", "reschedule",
			"cancel", "availability", "available", "slot", "slots", "opening", "openings",
			"visit", "cleaning", "checkup", "check-up", "filling", "crown", "whitening",
			"extraction", "root canal", "dentist", "hygienist", "waitlist",
			"cita", "citas", "agendar", "reservar", "reagendar", "cancelar",
			"disponible", "disponibilidad", "horario", "limpieza", "dentista",
		},
		denyTerms: []string{
			"diagnos", "prescri", "medicat", "dosage", "antibiotic", "painkiller",
			"ibuprofen", "amoxicillin", "symptom", "infection", "treatment plan",
			"medical advice", "side effect", "is it safe", "should i take",
			"invoice", "billing", "bill", "insurance", "claim", "refund", "payment",
			"price", "cost", "how much",
			"weather", "joke", "recipe", "poem", "stock", "politic", "sports",
			"diagnostic", "receta", "medicament", "dosis", "sintoma", "factura",
			"seguro", "pago", "precio", "cuanto cuesta", "chiste",
		},
	}
}

// InScope reports whether a message may be handed to the resolver.
// Unmatched small talk passes through; the resolver classifies it as
// unknown and the driver asks a clarifying question instead of refusing.
func (f *ScopeFilter) InScope(message string) bool {
	norm := normalizeText(message)

	denied := false
	for _, term := range f.denyTerms {
		if strings.Contains(norm, term) {
			denied = true
			break
		}
	}
	if !denied {
		return true
	}

	// "how much time should I book for a cleaning" mentions cost terms
	// but is still a scheduling question.
	for _, term := range f.allowTerms {
		if strings.Contains(norm, term) {
			return true
		}
	}
	return false
}
