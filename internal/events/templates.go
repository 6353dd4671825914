package events

import (
	"strings"
)

// MessageTemplateEngine renders event messages from per-reason templates.
type MessageTemplateEngine struct {
	templates map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	e.templates[ReasonCreated] = "{{.Kind}} {{.ID}} reset to created{{if .Message}}: {{.Message}}{{end}}"
	e.templates[ReasonInitializing] = "{{.Kind}} {{.ID}} is initializing"
	e.templates[ReasonDeploying] = "{{.Kind}} {{.ID}} is being deployed to namespace {{.Namespace}}"
	e.templates[ReasonDeployed] = "{{.Kind}} {{.ID}} is running"
	e.templates[ReasonFailed] = "{{.Kind}} {{.ID}} failed{{if .Message}}: {{.Message}}{{end}}"
	e.templates[ReasonDeleting] = "{{.Kind}} {{.ID}} is being deleted from namespace {{.Namespace}}"
	e.templates[ReasonStopped] = "{{.Kind}} {{.ID}} stopped"
	e.templates[ReasonCompleted] = "{{.Kind}} {{.ID}} completed"
	e.templates[ReasonTransition] = "{{.Kind}} {{.ID}} moved from {{.From}} to {{.To}}"
}

// Render produces the message for reason. Reasons without a template fall back to the
// generic transition message.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	template, ok := e.templates[reason]
	if !ok {
		template = e.templates[ReasonTransition]
	}
	return e.renderTemplate(template, data)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, template string) {
	e.templates[reason] = template
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	template, exists := e.templates[reason]
	return template, exists
}

// renderTemplate performs plain variable substitution plus {{if .Message}} blocks.
func (e *MessageTemplateEngine) renderTemplate(template string, data EventData) string {
	result := strings.NewReplacer(
		"{{.Kind}}", data.Kind,
		"{{.ID}}", data.ID,
		"{{.Namespace}}", data.Namespace,
		"{{.From}}", data.From,
		"{{.To}}", data.To,
	).Replace(template)

	result = renderConditional(result, "{{if .Message}}", "{{end}}", data.Message != "")
	return strings.ReplaceAll(result, "{{.Message}}", data.Message)
}

// renderConditional keeps or drops the first block between startMarker and endMarker.
func renderConditional(template, startMarker, endMarker string, condition bool) string {
	startIndex := strings.Index(template, startMarker)
	if startIndex == -1 {
		return template
	}

	endIndex := strings.Index(template[startIndex:], endMarker)
	if endIndex == -1 {
		return template
	}
	endIndex += startIndex

	before := template[:startIndex]
	after := template[endIndex+len(endMarker):]
	if !condition {
		return before + after
	}
	return before + template[startIndex+len(startMarker):endIndex] + after
}
