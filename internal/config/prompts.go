package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the fixed instructions sent to the AI backend.
type Prompts struct {
	Image string `yaml:"image"`
	Text  string `yaml:"text"`
}

// ForQuestion returns the text prompt with the user's question appended.
func (p Prompts) ForQuestion(question string) string {
	return p.Text + " Question: " + question
}

// LoadPrompts reads prompt templates from path, or the embedded defaults when
// path is empty. Missing keys in the file fall back to the defaults.
func LoadPrompts(path string) (Prompts, error) {
	var def Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &def); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: parse embedded: %w", err)
	}
	def.Image = strings.TrimSpace(def.Image)
	def.Text = strings.TrimSpace(def.Text)
	if strings.TrimSpace(path) == "" {
		return def, nil
	}

	// #nosec G304 -- operator supplied configuration path
	content, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: read %s: %w", path, err)
	}
	var p Prompts
	if err := yaml.Unmarshal(content, &p); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: parse %s: %w", path, err)
	}
	p.Image = strings.TrimSpace(p.Image)
	p.Text = strings.TrimSpace(p.Text)
	if p.Image == "" {
		p.Image = def.Image
	}
	if p.Text == "" {
		p.Text = def.Text
	}
	return p, nil
}
