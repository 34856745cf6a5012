package rag

import (
	"strings"

	"rhema/internal/models"
)

const (
	DefaultBibleVersion = "KJV"
	DefaultGoals        = "General Growth"
	DefaultMentors      = "Standard Theologians"
	DefaultStruggles    = "General Life Challenges"

	NoContextPlaceholder = "No specific scripture found."
	ContextSeparator     = "\n---\n"

	systemFraming = "You are RhemaAI, a divine intelligence assistant."
	answerRules   = "Answer the user's question using the provided Theological Context.\n" +
		"If the context doesn't explicitly answer the question, rely on your general knowledge " +
		"but mention that this isn't from the specific scripture bank.\n" +
		"Keep answers concise, inspiring, and faith-filled."
)

// Persona is the flattened personalization block of a prompt.
type Persona struct {
	BibleVersion string
	Goals        string
	Mentors      string
	Struggles    string
}

// PersonaFor fills every field, falling back to the neutral defaults when the
// profile is nil or a field is empty. List order is preserved.
func PersonaFor(p *models.UserProfile) Persona {
	persona := Persona{
		BibleVersion: DefaultBibleVersion,
		Goals:        DefaultGoals,
		Mentors:      DefaultMentors,
		Struggles:    DefaultStruggles,
	}
	if p == nil {
		return persona
	}
	if v := strings.TrimSpace(p.PreferredBibleVersion); v != "" {
		persona.BibleVersion = v
	}
	if v := joinList(p.SpiritualGoals); v != "" {
		persona.Goals = v
	}
	if v := joinList(p.FavoriteMinisters); v != "" {
		persona.Mentors = v
	}
	if v := joinList(p.Struggles); v != "" {
		persona.Struggles = v
	}
	return persona
}

func joinList(items []string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

// ContextBlock joins chunk contents in rank order, or returns the no-context placeholder.
func ContextBlock(chunks []models.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		parts = append(parts, c.Content)
	}
	if len(parts) == 0 {
		return NoContextPlaceholder
	}
	return strings.Join(parts, ContextSeparator)
}

// AssemblePrompt builds the generation prompt: system framing, persona
// instructions, retrieved context, then the literal question. Identical inputs
// give byte-identical output.
func AssemblePrompt(chunks []models.ScoredChunk, profile *models.UserProfile, question string) string {
	persona := PersonaFor(profile)

	var b strings.Builder
	b.WriteString(systemFraming)
	b.WriteString("\n\n")

	b.WriteString("Customize your response for this unique believer:\n")
	b.WriteString("- Preferred Bible: " + persona.BibleVersion + " (Use this for quotes unless specified otherwise).\n")
	b.WriteString("- Current Season Focus: " + persona.Goals + ".\n")
	b.WriteString("- Mentors/Tone: Emulate the wisdom and tone of: " + persona.Mentors + ".\n")
	b.WriteString("- Areas of Breakthrough: They are overcoming: " + persona.Struggles +
		". Speak life and victory into these areas.\n\n")

	b.WriteString(answerRules)
	b.WriteString("\n\n")

	b.WriteString("Context:\n")
	b.WriteString(ContextBlock(chunks))
	b.WriteString("\n\n")

	b.WriteString("User Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}
