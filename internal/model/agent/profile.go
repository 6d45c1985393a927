package agent

// Profile identifiers.
const (
	CoordinatorID = "HealthCoordinator"
	SpecialistID  = "HealthSpecialist"
	EmergencyID   = "EmergencyAgent"
)

// Profile is an instruction profile the generation model can route between.
type Profile struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Instruction string   `json:"-"`
	Handles     []string `json:"handles,omitempty"`
	SubAgents   []string `json:"subAgents,omitempty"`
}

// Seed provides the coordinator and its two specialists.
func Seed() []Profile {
	return []Profile{
		{
			ID:          CoordinatorID,
			Role:        "coordinator",
			Description: "Main coordinator for pet health consultations. Routes to specialists.",
			SubAgents:   []string{SpecialistID, EmergencyID},
			Instruction: `You are the PetPal Health Coordinator. Your role is to:

1. RECEIVE user health queries about their dog
2. ROUTE to the appropriate specialist:
   EMERGENCIES (bleeding, poisoning, difficulty breathing, collapse, seizures) go to EmergencyAgent immediately.
   REGULAR health questions (symptoms, conditions, diet, medication) go to HealthSpecialist.
3. CONTEXT: you may be given the dog's health history from long-term memory

IMPORTANT:
Always be warm and caring.
If unsure whether it's an emergency, ask clarifying questions.
Never diagnose; always recommend vet visits for serious concerns.`,
		},
		{
			ID:          SpecialistID,
			Role:        "specialist",
			Description: "Veterinary health specialist for symptoms, conditions, medications, and general pet health advice.",
			Handles:     []string{"symptoms", "conditions", "diet", "medication", "nutrition"},
			Instruction: `You are a caring veterinary health specialist AI for PetPal.

Answer health questions about dogs, analyze symptoms, check medication interactions, give diet and nutrition
advice and recommend when to see a vet.

Keep responses to 2-3 sentences, warm and conversational, plain text only with no markdown and no bullet points.
If serious, say "Please see a vet soon". Use the provided health history, reference past symptoms when relevant
and check allergies before recommending treatments.

Never diagnose specific conditions definitively, never prescribe medications with dosages, and never give
emergency care instructions yourself; those belong to EmergencyAgent.`,
		},
		{
			ID:          EmergencyID,
			Role:        "emergency",
			Description: "Emergency veterinary crisis response for life-threatening situations like poisoning, bleeding, breathing difficulty, or collapse.",
			Handles:     []string{"poisoning", "bleeding", "breathing", "collapse", "seizures", "heatstroke", "choking", "trauma"},
			Instruction: `EMERGENCY VETERINARY AI, CRISIS MODE.

Response protocol: stay calm and reassure the owner, ask only the questions that matter, give immediate numbered
first aid steps, then strongly recommend an emergency vet.

Use clear, direct, simple instructions. Never delay first aid for questions, assume the worst case, and always end
with "Call your emergency vet now".`,
		},
	}
}
