package memory

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/petpal/health-backend/internal/config"
)

// Queries used to pull structured history back out of free-text memory.
const (
	medicationsQuery  = "current medications prescriptions"
	vaccinationsQuery = "vaccinations vaccines shots"
	historyLimit      = 10
)

// Gateway is the only entry point to long-term memory, keyed by subject (pet) id.
type Gateway struct {
	client *client
	limit  int
}

// NewGateway builds a gateway. A nil httpClient gets one with the configured timeout.
func NewGateway(cfg config.MemoryConfig, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := cfg.SearchLimit
	if limit < 1 {
		limit = 5
	}
	return &Gateway{
		client: &client{http: httpClient, baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey},
		limit:  limit,
	}
}

// Enabled reports whether an API key was configured.
func (g *Gateway) Enabled() bool {
	return g != nil && g.client.apiKey != ""
}

// Remember stores one message for the subject.
func (g *Gateway) Remember(ctx context.Context, subjectID, content, role string, metadata map[string]any) bool {
	if !g.Enabled() {
		return false
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["role"] = role

	err := g.client.add(ctx, addRequest{
		Messages: []message{{Role: role, Content: content}},
		UserID:   subjectID,
		Metadata: meta,
	})
	if err != nil {
		log.Printf("[memory] add failed subject=%s: %v", subjectID, err)
		return false
	}
	return true
}

// Recall returns memory snippets for query in the order the backend ranked them.
// A limit below one uses the configured default.
func (g *Gateway) Recall(ctx context.Context, subjectID, query string, limit int) []string {
	records := g.search(ctx, subjectID, query, limit)
	snippets := make([]string, 0, len(records))
	for _, rec := range records {
		snippets = append(snippets, rec.Memory)
	}
	return snippets
}

func (g *Gateway) search(ctx context.Context, subjectID, query string, limit int) []Record {
	if !g.Enabled() {
		return nil
	}
	if limit < 1 {
		limit = g.limit
	}

	records, err := g.client.search(ctx, searchRequest{Query: query, UserID: subjectID, Limit: limit})
	if err != nil {
		log.Printf("[memory] search failed subject=%s: %v", subjectID, err)
		return nil
	}
	return records
}

// HealthContext renders recalled memories as a prompt section, or "" when there are none.
func (g *Gateway) HealthContext(ctx context.Context, subjectID, query string) string {
	snippets := g.Recall(ctx, subjectID, query, 0)
	if len(snippets) == 0 {
		return ""
	}

	var builder strings.Builder
	builder.WriteString("Previous Health Context:")
	for _, s := range snippets {
		builder.WriteString("\n- ")
		builder.WriteString(s)
	}
	return builder.String()
}

// Findings summarise a finished consultation.
type Findings struct {
	Summary         string
	Symptoms        []string
	Conditions      []string
	Recommendations []string
}

// StoreFindings records a consultation summary.
func (g *Gateway) StoreFindings(ctx context.Context, subjectID, consultationID string, f Findings) bool {
	content := fmt.Sprintf("Consultation Summary: %s\nSymptoms discussed: %s\nConditions identified: %s\nRecommendations: %s",
		f.Summary, joinOrNone(f.Symptoms), joinOrNone(f.Conditions), joinOrNone(f.Recommendations))

	return g.Remember(ctx, subjectID, content, "assistant", map[string]any{
		"type":            "consultation_summary",
		"consultation_id": consultationID,
		"symptoms":        f.Symptoms,
		"conditions":      f.Conditions,
	})
}

// AddMedication records a prescribed medication.
func (g *Gateway) AddMedication(ctx context.Context, subjectID, medication, dosage, frequency string) bool {
	content := fmt.Sprintf("Medication prescribed: %s, Dosage: %s, Frequency: %s", medication, dosage, frequency)
	return g.Remember(ctx, subjectID, content, "system", map[string]any{
		"type":      "medication",
		"name":      medication,
		"dosage":    dosage,
		"frequency": frequency,
	})
}

// AddVaccination records a vaccination.
func (g *Gateway) AddVaccination(ctx context.Context, subjectID, vaccine, date, vet string) bool {
	content := fmt.Sprintf("Vaccination: %s given on %s", vaccine, date)
	if vet != "" {
		content += " by " + vet
	}
	return g.Remember(ctx, subjectID, content, "system", map[string]any{
		"type":    "vaccination",
		"vaccine": vaccine,
		"date":    date,
		"vet":     vet,
	})
}

// Medications returns remembered medication entries.
func (g *Gateway) Medications(ctx context.Context, subjectID string) []string {
	return g.Recall(ctx, subjectID, medicationsQuery, historyLimit)
}

// Vaccinations returns remembered vaccination entries.
func (g *Gateway) Vaccinations(ctx context.Context, subjectID string) []string {
	return g.Recall(ctx, subjectID, vaccinationsQuery, historyLimit)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}
