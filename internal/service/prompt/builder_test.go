package prompt

import (
	"strings"
	"testing"

	"github.com/petpal/health-backend/internal/model/agent"
	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/model/session"
)

func TestBuildConsultationKeepsNameAndMessage(t *testing.T) {
	message := "Rex ate half a bar of dark chocolate 20 minutes ago, what do I do?"
	out := BuildConsultation(ConsultationInput{
		Profile:       pet.Profile{Name: "Rex", Breed: "Beagle", Age: "3 years", Weight: "12kg"},
		HealthContext: "Previous Health Context:\n- Allergic to chicken",
		Message:       message,
		Mode:          ModeEmergency,
	})

	for _, want := range []string{"Name: Rex", message, "Beagle", "Allergic to chicken", modeInstructions[ModeEmergency]} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestBuildConsultationDefaults(t *testing.T) {
	out := BuildConsultation(ConsultationInput{Message: "is he ok?", Mode: ModeText})

	if !strings.Contains(out, "Name: "+pet.DefaultName) {
		t.Fatalf("expected default name in prompt:\n%s", out)
	}
	if !strings.Contains(out, "Age: adult") {
		t.Fatalf("expected default age in prompt:\n%s", out)
	}
	if strings.Contains(out, "Previous Health Context") {
		t.Fatal("empty health context should not render")
	}
}

func TestBuildConsultationModeLines(t *testing.T) {
	for mode, line := range modeInstructions {
		out := BuildConsultation(ConsultationInput{Message: "hi", Mode: mode})
		if !strings.Contains(out, line) {
			t.Fatalf("mode %s missing its instruction line", mode)
		}
	}

	out := BuildConsultation(ConsultationInput{Message: "hi", Mode: "telepathy"})
	for _, line := range modeInstructions {
		if strings.Contains(out, line) {
			t.Fatalf("unknown mode should not add %q", line)
		}
	}
}

func TestParseMode(t *testing.T) {
	if got := ParseMode(""); got != ModeText {
		t.Fatalf("expected text default, got %s", got)
	}
	if got := ParseMode(" Voice "); got != ModeVoice {
		t.Fatalf("expected voice, got %s", got)
	}
}

func TestBuildHealthPrompt(t *testing.T) {
	out := BuildHealthPrompt(HealthPromptInput{
		Profile:       pet.Profile{Name: "Bella", Breed: "Labrador", Age: "puppy", Allergies: []string{"beef"}},
		MemoryContext: "Bella had diarrhea last week.",
		Message:       "Can Bella eat carrots?",
	})

	for _, want := range []string{"DOG: Bella (Labrador, puppy)", "Allergies: beef", "Medications: none", "Bella had diarrhea last week.", "USER: Can Bella eat carrots?"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}

	bare := BuildHealthPrompt(HealthPromptInput{Message: "hello"})
	if strings.Contains(bare, "HEALTH INFO") {
		t.Fatal("health info should be omitted without allergies or medications")
	}
}

func TestBuildPrescription(t *testing.T) {
	out := BuildPrescription(PrescriptionInput{
		DogName:            "Rex",
		CurrentMedications: []string{"Medication prescribed: Apoquel", " "},
		Medication:         "Carprofen",
		Dosage:             "75mg",
	})

	for _, want := range []string{"interactions for Rex", "- Medication prescribed: Apoquel", "Medication: Carprofen", "Dosage: 75mg", "SAFE or CAUTION or WARNING"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}

	empty := BuildPrescription(PrescriptionInput{Medication: "Carprofen"})
	if !strings.Contains(empty, "CURRENT MEDICATIONS:\nNone") {
		t.Fatalf("expected None placeholder:\n%s", empty)
	}
}

func TestBuildVaccination(t *testing.T) {
	out := BuildVaccination(VaccinationInput{
		Profile: pet.Profile{Name: "Rex", Breed: "Beagle", Age: "3 years"},
		Action:  "calculate next boosters",
	})

	for _, want := range []string{"vaccinations for Rex (Beagle, 3 years)", "No records", "TASK: CALCULATE NEXT BOOSTERS"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestLiveInstruction(t *testing.T) {
	if LiveInstruction(session.KindVoice) == LiveInstruction(session.KindVideo) {
		t.Fatal("voice and video should differ")
	}
	if !strings.Contains(LiveInstruction(session.KindVideo), "video") {
		t.Fatal("video instruction should mention video")
	}
	if LiveInstruction(session.KindLive) == "" {
		t.Fatal("live instruction should not be empty")
	}
}

func TestRoutingInstruction(t *testing.T) {
	out := RoutingInstruction(agent.Seed())

	if !strings.HasPrefix(out, "You are the PetPal Health Coordinator") {
		t.Fatalf("expected coordinator first:\n%s", out)
	}
	for _, id := range []string{agent.SpecialistID, agent.EmergencyID} {
		if !strings.Contains(out, "=== "+id+" ===") {
			t.Fatalf("missing profile %s", id)
		}
	}

	if RoutingInstruction(nil) != "" {
		t.Fatal("no profiles should yield an empty instruction")
	}
}
