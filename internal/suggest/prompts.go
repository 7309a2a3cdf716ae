package suggest

import (
	"fmt"
	"strings"

	"metamorph/internal/types"
)

// systemInstruction frames every hypothesis consultation.
const systemInstruction = "You are advising a self-modifying Go program. " +
	"Answer with one concrete, minimal suggestion. " +
	"When you include code, put it in a single fenced go block containing " +
	"complete top-level declarations only."

// InspirationPrompt asks for open-ended improvement material over the
// currently registered components.
func InspirationPrompt(componentIDs []string) string {
	return fmt.Sprintf(
		"The managed Go program has these components: %s.\n"+
			"Suggest one small, concrete improvement to one of them. "+
			"If you include code, put it in a fenced go block.",
		strings.Join(componentIDs, ", "))
}

// HypothesisPrompt builds the consultation prompt for one hypothesis. Each
// kind asks for material shaped the way the transformer can use it.
func HypothesisPrompt(h types.Hypothesis) (system, user string) {
	var b strings.Builder
	switch h.Kind {
	case types.KindExpandFunctionality:
		fmt.Fprintf(&b, "Write one new method for the Go component %q.\n", h.Target)
		b.WriteString("Return a single fenced go block with a complete method declaration. ")
		b.WriteString("Use only the standard library, and no process, network, or file access.\n")
	case types.KindCreateNewModule:
		b.WriteString("Propose a small new Go component for the managed program.\n")
		b.WriteString("Return a single fenced go block declaring one type and one or two methods. ")
		b.WriteString("Use only the standard library, and no process, network, or file access.\n")
	case types.KindRefactorSimplification:
		fmt.Fprintf(&b, "The component %q has been growing in structural size.\n", h.Target)
		b.WriteString("Describe, in prose, how to simplify it without changing behavior.\n")
	case types.KindOptimizePerformance:
		fmt.Fprintf(&b, "The component %q shows degraded performance metrics.\n", h.Target)
		b.WriteString("Describe, in prose, the most likely optimization.\n")
	case types.KindIntegration:
		fmt.Fprintf(&b, "Describe how the Go component %q could call into %q.\n", h.Target, h.IntegrationTarget)
	default:
		fmt.Fprintf(&b, "Suggest an improvement for the component %q.\n", h.Target)
	}
	if h.Rationale != "" {
		fmt.Fprintf(&b, "Context: %s\n", h.Rationale)
	}
	return systemInstruction, b.String()
}
