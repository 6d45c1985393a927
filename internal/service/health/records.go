package health

import (
	"context"
	"strings"
	"unicode"

	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/service/ai"
	"github.com/petpal/health-backend/internal/service/prompt"
)

// Verdict is the leading keyword of an interaction check.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictCaution Verdict = "CAUTION"
	VerdictWarning Verdict = "WARNING"
)

// ParseVerdict returns the first verdict keyword appearing as a whole word, or "".
func ParseVerdict(text string) Verdict {
	words := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		switch Verdict(w) {
		case VerdictSafe, VerdictCaution, VerdictWarning:
			return Verdict(w)
		}
	}
	return ""
}

// PrescriptionRequest is one prescription action.
type PrescriptionRequest struct {
	DogID      string
	DogName    string
	Medication string
	Dosage     string
	Frequency  string
}

// InteractionReport is the result of an interaction check.
type InteractionReport struct {
	Medication   string
	Interactions string
	Verdict      Verdict
	Safe         bool
}

// AddPrescription stores a medication. stored is false when memory is unavailable.
func (s *Service) AddPrescription(ctx context.Context, req PrescriptionRequest) (stored bool, err error) {
	if strings.TrimSpace(req.Medication) == "" {
		return false, ErrMissingMedication
	}
	return s.mem.AddMedication(ctx, subject(req.DogID), req.Medication, req.Dosage, req.Frequency), nil
}

// Prescriptions lists remembered medications.
func (s *Service) Prescriptions(ctx context.Context, dogID string) []string {
	return nonNil(s.mem.Medications(ctx, subject(dogID)))
}

// CheckInteraction asks the model whether a new medication is safe alongside
// the remembered ones.
func (s *Service) CheckInteraction(ctx context.Context, req PrescriptionRequest) (InteractionReport, error) {
	if strings.TrimSpace(req.Medication) == "" {
		return InteractionReport{}, ErrMissingMedication
	}
	if !s.gen.Available() {
		return InteractionReport{}, ai.ErrUnavailable
	}

	p := prompt.BuildPrescription(prompt.PrescriptionInput{
		DogName:            req.DogName,
		CurrentMedications: s.mem.Medications(ctx, subject(req.DogID)),
		Medication:         req.Medication,
		Dosage:             req.Dosage,
	})

	text, err := s.gen.Generate(ctx, "", p)
	if err != nil {
		return InteractionReport{}, err
	}

	verdict := ParseVerdict(text)
	return InteractionReport{
		Medication:   req.Medication,
		Interactions: text,
		Verdict:      verdict,
		Safe:         verdict == VerdictSafe,
	}, nil
}

// VaccinationRequest is one vaccination action.
type VaccinationRequest struct {
	Profile pet.Profile
	Vaccine string
	Date    string
	Vet     string
}

// AddVaccination stores a vaccination record.
func (s *Service) AddVaccination(ctx context.Context, req VaccinationRequest) (stored bool, err error) {
	if strings.TrimSpace(req.Vaccine) == "" {
		return false, ErrMissingVaccine
	}
	return s.mem.AddVaccination(ctx, subject(req.Profile.ID), req.Vaccine, req.Date, req.Vet), nil
}

// Vaccinations lists remembered vaccinations.
func (s *Service) Vaccinations(ctx context.Context, dogID string) []string {
	return nonNil(s.mem.Vaccinations(ctx, subject(dogID)))
}

// BoosterSchedule asks the model for the next due vaccines.
func (s *Service) BoosterSchedule(ctx context.Context, req VaccinationRequest) (string, error) {
	if !s.gen.Available() {
		return "", ai.ErrUnavailable
	}

	p := prompt.BuildVaccination(prompt.VaccinationInput{
		Profile: req.Profile,
		History: s.mem.Vaccinations(ctx, subject(req.Profile.ID)),
		Action:  "calculate next boosters",
	})
	return s.gen.Generate(ctx, "", p)
}

func subject(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return pet.DefaultID
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
