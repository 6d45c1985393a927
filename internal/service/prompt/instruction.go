package prompt

import (
	"strings"

	"github.com/petpal/health-backend/internal/model/agent"
	"github.com/petpal/health-backend/internal/model/session"
)

const voiceInstruction = `You are a friendly AI veterinary assistant for PetPal having a voice conversation with a pet owner.

Speak naturally and conversationally, like a caring vet talking to a friend.
Keep responses to 1-3 sentences since this is voice.
Confirm you heard them correctly before giving advice.
Always recommend seeing a real vet for serious issues and never diagnose definitively.`

const videoInstruction = `You are a friendly AI veterinary assistant for PetPal. The user is showing you their pet via video.

Describe briefly what you see and focus on what is visible and relevant.
Keep responses to 2-3 sentences, warm and reassuring.
If you see concerning symptoms, mention them gently and suggest a vet visit.
Never diagnose definitively; give guidance only.`

const liveInstruction = `You are a friendly AI veterinary assistant for PetPal.

Speak naturally and conversationally, like a caring vet.
Keep responses brief (1-3 sentences) since this is voice.
If you see concerning symptoms in video, mention them gently.
Always recommend seeing a real vet for serious issues and never diagnose definitively.

You are speaking with a pet owner about their dog's health. Answer their questions helpfully and ask follow-up
questions if needed.`

// LiveInstruction returns the system instruction for a live relay session.
func LiveInstruction(kind session.Kind) string {
	switch kind {
	case session.KindVoice:
		return voiceInstruction
	case session.KindVideo:
		return videoInstruction
	default:
		return liveInstruction
	}
}

// RoutingInstruction joins the coordinator instruction with the profiles it may
// hand over to. The generation model makes the routing decision itself.
func RoutingInstruction(profiles []agent.Profile) string {
	var coordinator *agent.Profile
	var specialists []agent.Profile
	for i := range profiles {
		if profiles[i].ID == agent.CoordinatorID {
			coordinator = &profiles[i]
			continue
		}
		specialists = append(specialists, profiles[i])
	}

	var b strings.Builder
	if coordinator != nil {
		b.WriteString(coordinator.Instruction)
	}
	for _, p := range specialists {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== ")
		b.WriteString(p.ID)
		b.WriteString(" ===\n")
		b.WriteString(p.Description)
		b.WriteString("\n\n")
		b.WriteString(p.Instruction)
	}
	if len(specialists) > 0 {
		b.WriteString("\n\nAnswer directly in the voice of whichever profile fits the question. Do not mention the profiles.")
	}
	return b.String()
}
