// Package ai generates conversation starters for a recognized family member.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by NewGenerator.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Profile describes the person the patient is about to talk to.
type Profile struct {
	Name     string
	Relation string
	Interest string
	// LatestUpdate is the most recent family news posted for them, if any.
	LatestUpdate string
}

// Generator produces a single conversation starter for a profile.
type Generator interface {
	Starter(ctx context.Context, p Profile) (string, error)
	Name() string
}

// Config selects and configures a Generator.
type Config struct {
	Provider     string
	GeminiAPIKey string
	OpenAIAPIKey string
	// Model overrides the provider's default model.
	Model string
}

// NewGenerator returns the configured provider. An empty provider picks
// Gemini when its key is set, then OpenAI, then the static template.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		switch {
		case cfg.GeminiAPIKey != "":
			provider = ProviderGemini
		case cfg.OpenAIAPIKey != "":
			provider = ProviderOpenAI
		default:
			provider = ProviderStatic
		}
	}

	switch provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.Model)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model), nil
	case ProviderStatic:
		return StaticGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown conversation provider %q", cfg.Provider)
	}
}

// BuildPrompt returns the instruction sent to a language model.
func BuildPrompt(p Profile) string {
	topic := p.Interest
	if topic == "" {
		topic = "their day"
	}
	relation := p.Relation
	if relation == "" {
		relation = "family member"
	}

	news := ""
	if u := strings.TrimSpace(p.LatestUpdate); u != "" {
		news = fmt.Sprintf("\nTheir latest news: %s. You may ask about it instead of the topic.", u)
	}

	return fmt.Sprintf(`Generate a kind, simple conversation starter for someone with dementia.
Context: Talking to %s who is your %s.
They are interested in %s. Make the conversation related to the topic. Do not invent memories or information.%s
Keep the conversational cue regular and not awkward. Keep it under 30 words.
Use their name to make it more personal. Do not give options.
Reply with a single one or two line conversation starter and nothing else.`, p.Name, relation, topic, news)
}

// newsWords bounds how much of an update goes into a template starter.
const newsWords = 12

// headline shortens an update to its first newsWords words, without
// trailing punctuation.
func headline(update string) string {
	words := strings.Fields(update)
	if len(words) > newsWords {
		words = words[:newsWords]
	}
	return strings.TrimRight(strings.Join(words, " "), ".!?,;: ")
}

// cleanStarter trims quotes and whitespace models tend to add.
func cleanStarter(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”")
	return strings.TrimSpace(s)
}

// StaticGenerator builds a starter from a fixed template without any API.
type StaticGenerator struct{}

// Name returns the provider name.
func (StaticGenerator) Name() string { return ProviderStatic }

// Starter returns a templated greeting using the profile.
func (StaticGenerator) Starter(ctx context.Context, p Profile) (string, error) {
	if news := headline(p.LatestUpdate); news != "" {
		return fmt.Sprintf("Hello %s! I heard your news: %s. How is that going?", p.Name, news), nil
	}
	if p.Interest != "" {
		return fmt.Sprintf("Hello %s! How has %s been going lately?", p.Name, p.Interest), nil
	}
	return fmt.Sprintf("Hello %s! It's lovely to see you. How has your day been?", p.Name), nil
}
