package generation

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
)

// DefaultSystemPrompt is used when no prompt file is configured or the file
// cannot be read.
const DefaultSystemPrompt = "You are a document reviewer. Review the provided document thoroughly: " +
	"summarize its content, analyze its structure and assess its quality."

// DefaultInstructionTemplate is the user turn sent along with the document.
const DefaultInstructionTemplate = `Analyze the requirements document "{{.DocumentName}}" from a security perspective.`

// InstructionData is the data available to the instruction template.
type InstructionData struct {
	DocumentName string
	Format       string
}

// Prompts holds the system prompt and the parsed instruction template.
type Prompts struct {
	System      string
	instruction *template.Template
}

// NewPrompts parses the instruction template. An empty system prompt falls
// back to DefaultSystemPrompt.
func NewPrompts(system, instruction string) (*Prompts, error) {
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	if instruction == "" {
		instruction = DefaultInstructionTemplate
	}

	tmpl, err := template.New("instruction").Option("missingkey=error").Parse(instruction)
	if err != nil {
		return nil, fmt.Errorf("%w: parse instruction template: %v", ErrInvalidConfig, err)
	}

	return &Prompts{System: strings.TrimSpace(system), instruction: tmpl}, nil
}

// LoadPrompts reads the system prompt from path. A missing or unreadable file
// is logged and replaced by the default prompt.
func LoadPrompts(path string, logger *slog.Logger) (*Prompts, error) {
	if logger == nil {
		logger = slog.Default()
	}

	system := ""
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			system = string(data)
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("prompt file not found, using default prompt", "path", path)
		default:
			logger.Error("failed to read prompt file, using default prompt",
				"path", path, "error", err)
		}
	}

	return NewPrompts(system, "")
}

// Instruction renders the user turn for one document.
func (p *Prompts) Instruction(data InstructionData) (string, error) {
	var buf bytes.Buffer
	if err := p.instruction.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return buf.String(), nil
}
