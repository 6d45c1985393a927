// Package prompt turns profile fields, memory text and the user's message into
// instruction strings for the generation API. Everything here is pure.
package prompt

import (
	"fmt"
	"strings"

	"github.com/petpal/health-backend/internal/model/pet"
)

// Mode selects the tone line of a consultation prompt.
type Mode string

const (
	ModeText      Mode = "text"
	ModeVoice     Mode = "voice"
	ModeVideo     Mode = "video"
	ModeEmergency Mode = "emergency"
)

var modeInstructions = map[Mode]string{
	ModeText:      "Respond in plain text, 2-3 sentences max.",
	ModeVoice:     "Respond conversationally as if speaking. Keep it brief and warm.",
	ModeVideo:     "The user may be showing you their pet. Describe what concerns you see if any.",
	ModeEmergency: "This is an EMERGENCY. Provide immediate first aid steps. Be direct.",
}

// ParseMode normalises a client supplied mode. Unknown values are kept as-is
// and produce no instruction line.
func ParseMode(raw string) Mode {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return ModeText
	}
	return mode
}

// ConsultationInput feeds BuildConsultation.
type ConsultationInput struct {
	Profile       pet.Profile
	HealthContext string
	Message       string
	Mode          Mode
}

// BuildConsultation renders the consultation prompt. The pet name and the user
// message always appear verbatim.
func BuildConsultation(in ConsultationInput) string {
	p := in.Profile.WithDefaults()

	var b strings.Builder
	b.WriteString("You are a caring veterinary AI assistant for PetPal.\n\n")
	b.WriteString("DOG PROFILE:\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Breed: %s\n", placeholder(p.Breed))
	fmt.Fprintf(&b, "Age: %s\n", p.Age)
	fmt.Fprintf(&b, "Weight: %s\n", placeholder(p.Weight))
	writeList(&b, "Allergies", p.Allergies)
	writeList(&b, "Medications", p.Medications)

	if history := strings.TrimSpace(in.HealthContext); history != "" {
		b.WriteString("\n")
		b.WriteString(history)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nUSER QUESTION: %s\n\n", in.Message)
	b.WriteString("INSTRUCTIONS:\n")
	if line, ok := modeInstructions[in.Mode]; ok {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("Be warm and friendly.\n")
	b.WriteString("Never use markdown formatting.\n")
	b.WriteString("If serious, recommend seeing a vet.\n")
	b.WriteString("Reference past health issues if relevant.\n")
	return b.String()
}

// HealthPromptInput feeds BuildHealthPrompt.
type HealthPromptInput struct {
	Profile       pet.Profile
	MemoryContext string
	Message       string
}

// BuildHealthPrompt renders the short prompt used by the REST text endpoint.
func BuildHealthPrompt(in HealthPromptInput) string {
	p := in.Profile.WithDefaults()

	var b strings.Builder
	b.WriteString("You are a friendly AI veterinary assistant. Be brief and conversational.\n\n")
	if p.Breed != "" {
		fmt.Fprintf(&b, "DOG: %s (%s, %s)\n", p.Name, p.Breed, p.Age)
	} else {
		fmt.Fprintf(&b, "DOG: %s (%s)\n", p.Name, p.Age)
	}

	if len(p.Allergies) > 0 || len(p.Medications) > 0 {
		fmt.Fprintf(&b, "\nHEALTH INFO: Allergies: %s. Medications: %s.\n", joinOrNone(p.Allergies), joinOrNone(p.Medications))
	}
	if mem := strings.TrimSpace(in.MemoryContext); mem != "" {
		b.WriteString("\n")
		b.WriteString(mem)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nUSER: %s\n\n", in.Message)
	b.WriteString("RULES:\n")
	b.WriteString("2-3 short sentences maximum.\n")
	b.WriteString("No markdown, no bullet points.\n")
	b.WriteString("Friendly, conversational tone.\n")
	b.WriteString("Say \"see a vet\" if serious.\n")
	return b.String()
}

// PrescriptionInput feeds BuildPrescription.
type PrescriptionInput struct {
	DogName            string
	CurrentMedications []string
	Medication         string
	Dosage             string
}

// BuildPrescription asks for an interaction check that starts with a verdict keyword.
func BuildPrescription(in PrescriptionInput) string {
	name := orPlaceholder(in.DogName, pet.DefaultName)

	var b strings.Builder
	fmt.Fprintf(&b, "You are checking medication interactions for %s.\n\n", name)
	b.WriteString("CURRENT MEDICATIONS:\n")
	writeLines(&b, in.CurrentMedications, "None")
	b.WriteString("\nNEW PRESCRIPTION:\n")
	fmt.Fprintf(&b, "Medication: %s\n", in.Medication)
	fmt.Fprintf(&b, "Dosage: %s\n", placeholder(in.Dosage))
	b.WriteString(`
TASK:
1. Check for drug interactions between current and new medications
2. Note any contraindications for dogs
3. Recommend if safe to prescribe

Respond with:
SAFE or CAUTION or WARNING as the first word
A brief explanation
Any monitoring recommendations
`)
	return b.String()
}

// VaccinationInput feeds BuildVaccination.
type VaccinationInput struct {
	Profile pet.Profile
	History []string
	Action  string
}

// BuildVaccination renders the booster schedule prompt.
func BuildVaccination(in VaccinationInput) string {
	p := in.Profile.WithDefaults()
	action := orPlaceholder(in.Action, "schedule")

	var b strings.Builder
	fmt.Fprintf(&b, "You are managing vaccinations for %s (%s, %s).\n\n", p.Name, placeholder(p.Breed), p.Age)
	b.WriteString("VACCINATION HISTORY:\n")
	writeLines(&b, in.History, "No records")
	fmt.Fprintf(&b, "\nTASK: %s\n", strings.ToUpper(action))
	b.WriteString(`
If calculating boosters:
Core vaccines (Rabies, DHPP) typically every 1-3 years.
Non-core vaccines depend on lifestyle (Bordetella, Lyme, etc.).

Provide:
Next due vaccines with dates
Any overdue vaccines
Recommendations based on breed and age
`)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

func writeLines(b *strings.Builder, items []string, empty string) {
	written := 0
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		fmt.Fprintf(b, "- %s\n", item)
		written++
	}
	if written == 0 {
		b.WriteString(empty)
		b.WriteString("\n")
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func placeholder(value string) string {
	return orPlaceholder(value, "unknown")
}

func orPlaceholder(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
