// Package entities spots symptom and condition phrases in what an owner says.
package entities

import (
	"strings"
	"unicode"
)

// Entities are the health terms mentioned in one utterance, in canonical form.
type Entities struct {
	Symptoms   []string `json:"symptoms"`
	Conditions []string `json:"conditions"`
}

// bucket maps whole-word phrases to one canonical term.
type bucket struct {
	name    string
	phrases []string
}

// 顺序即输出顺序
var symptomBuckets = []bucket{
	{"vomiting", []string{"vomit", "vomits", "vomited", "vomiting", "throwing up", "threw up", "throw up", "throws up"}},
	{"diarrhea", []string{"diarrhea", "diarrhoea", "loose stool", "loose stools", "runny stool", "runny stools"}},
	{"lethargy", []string{"lethargic", "lethargy", "sluggish", "no energy"}},
	{"itching", []string{"itch", "itches", "itchy", "itching", "scratching", "licking his paws", "licking her paws"}},
	{"limping", []string{"limp", "limps", "limped", "limping"}},
	{"coughing", []string{"cough", "coughs", "coughed", "coughing"}},
	{"sneezing", []string{"sneeze", "sneezes", "sneezed", "sneezing"}},
	{"loss of appetite", []string{"not eating", "won't eat", "wont eat", "loss of appetite", "stopped eating"}},
	{"excessive thirst", []string{"drinking a lot", "excessive thirst", "very thirsty"}},
	{"bleeding", []string{"bleeding", "bleeds", "bloody", "blood in his", "blood in her", "blood in the"}},
	{"seizure", []string{"seizure", "seizures", "seizing", "convulsion", "convulsions", "convulsing"}},
	{"breathing difficulty", []string{"difficulty breathing", "trouble breathing", "can't breathe", "wheeze", "wheezes", "wheezing", "gasping"}},
	{"swelling", []string{"swelling", "swollen", "lump", "lumps"}},
	{"hair loss", []string{"hair loss", "bald patch", "bald patches", "losing fur"}},
	{"fever", []string{"fever", "feels hot"}},
}

var conditionBuckets = []bucket{
	{"ear infection", []string{"ear infection", "ear infections", "otitis"}},
	{"allergy", []string{"allergy", "allergies", "allergic"}},
	{"arthritis", []string{"arthritis", "stiff joints"}},
	{"poisoning", []string{"poison", "poisoned", "poisoning", "xylitol", "antifreeze", "rat bait",
		"ate chocolate", "ate some chocolate", "eaten chocolate", "ate grapes", "ate raisins"}},
	{"heatstroke", []string{"heatstroke", "heat stroke", "overheating", "overheated"}},
	{"parvovirus", []string{"parvo", "parvovirus"}},
	{"kennel cough", []string{"kennel cough"}},
	{"dermatitis", []string{"dermatitis", "hot spot", "hot spots"}},
	{"pancreatitis", []string{"pancreatitis"}},
	{"diabetes", []string{"diabetes", "diabetic"}},
	{"bloat", []string{"bloat", "bloated", "gdv"}},
	{"parasites", []string{"worms", "parasite", "parasites", "flea", "fleas", "ticks"}},
	{"hip dysplasia", []string{"hip dysplasia"}},
	{"obesity", []string{"overweight", "obese", "obesity"}},
}

// Extract 从用户描述中提取症状与疾病。
// Only whole words and phrases match. Both lists are non-nil so they encode as JSON arrays.
func Extract(utterance string) Entities {
	words := tokenize(utterance)

	return Entities{
		Symptoms:   match(words, symptomBuckets),
		Conditions: match(words, conditionBuckets),
	}
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func match(words []string, buckets []bucket) []string {
	found := []string{}
	if len(words) == 0 {
		return found
	}

	for _, b := range buckets {
		for _, phrase := range b.phrases {
			if containsPhrase(words, strings.Fields(phrase)) {
				found = append(found, b.name)
				break
			}
		}
	}
	return found
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		matched := true
		for j, w := range phrase {
			if words[i+j] != w {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
