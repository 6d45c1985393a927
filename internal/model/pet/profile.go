package pet

import "strings"

// Default placeholders used when the client leaves profile fields blank.
const (
	DefaultID   = "default"
	DefaultName = "Your dog"
	DefaultAge  = "adult"
)

// Profile is the subject of a consultation. It is supplied by the caller on every
// request and never stored here.
type Profile struct {
	ID          string   `json:"dog_id"`
	Name        string   `json:"dog_name"`
	Breed       string   `json:"breed"`
	Age         string   `json:"age"`
	Weight      string   `json:"weight"`
	Allergies   []string `json:"allergies,omitempty"`
	Medications []string `json:"medications,omitempty"`
}

// WithDefaults returns a copy with blank id, name and age replaced by placeholders.
func (p Profile) WithDefaults() Profile {
	p.ID = orDefault(p.ID, DefaultID)
	p.Name = orDefault(p.Name, DefaultName)
	p.Age = orDefault(p.Age, DefaultAge)
	p.Breed = strings.TrimSpace(p.Breed)
	p.Weight = strings.TrimSpace(p.Weight)
	return p
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
