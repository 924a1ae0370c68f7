package chat

import (
	"strings"

	"github.com/nstogner/glow/pkg/domain"
)

// StatusProcessing is shown while no tool is in use.
const StatusProcessing = "Processing"

// toolLabels maps tool name fragments to status labels. Order matters: the
// first fragment contained in the tool name wins.
var toolLabels = []struct {
	fragment string
	label    string
}{
	{"routine", "Generating Routine... (Normally takes 1 minute)"},
	{"send_mail", "Sending Mail..."},
	{"detect_skin_type_from_questions", "Analyzing Skin Type (Questions)"},
	{"analyze_skin_type_from_image", "Analyzing Skin Type (Image)"},
}

// ToolDisplayName returns a short status label for the first tool part of an
// in-flight message.
func ToolDisplayName(msg domain.Message) string {
	for _, p := range msg.Parts {
		if !p.IsTool() {
			continue
		}
		name := p.ToolName()
		for _, l := range toolLabels {
			if strings.Contains(name, l.fragment) {
				return l.label
			}
		}
		return "Using " + name
	}
	return StatusProcessing
}
