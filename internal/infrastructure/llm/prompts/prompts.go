// Package prompts holds the model instructions used by every LLM backend.
// Operators can override them with a YAML file.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const textPlaceholder = "{text}"

type Prompts struct {
	ImageSystem   string `yaml:"image_system"`
	ImageUser     string `yaml:"image_user"`
	SummarySystem string `yaml:"summary_system"`
	SummaryUser   string `yaml:"summary_user"`
}

func Default() Prompts {
	return Prompts{
		ImageSystem:   "You are a helpful assistant.",
		ImageUser:     "Describe this picture:",
		SummarySystem: "You are a helpful assistant that summarizes document content. Provide a clear, concise summary of the main points from the document.",
		SummaryUser:   "Please summarize the following document content:\n\n" + textPlaceholder,
	}
}

// Load reads overrides from path. Empty fields keep their defaults and an
// empty path returns Default.
func Load(path string) (Prompts, error) {
	out := Default()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts file: %w", err)
	}
	if override.ImageSystem != "" {
		out.ImageSystem = override.ImageSystem
	}
	if override.ImageUser != "" {
		out.ImageUser = override.ImageUser
	}
	if override.SummarySystem != "" {
		out.SummarySystem = override.SummarySystem
	}
	if override.SummaryUser != "" {
		if !strings.Contains(override.SummaryUser, textPlaceholder) {
			return Prompts{}, fmt.Errorf("summary_user must contain %s", textPlaceholder)
		}
		out.SummaryUser = override.SummaryUser
	}
	return out, nil
}

func (p Prompts) SummaryUserMessage(text string) string {
	return strings.Replace(p.SummaryUser, textPlaceholder, text, 1)
}
