package services

import (
	"fmt"
	"strings"

	"github.com/xlbiz/incident-agent/internal/knowledge"
)

// buildKnowledgeSolution renders a solution document from the best knowledge
// match, listing up to two runner-up titles for context
func buildKnowledgeSolution(best knowledge.Match, all []knowledge.Match) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Recommended Solution: %s\n", best.Entry.Title)
	fmt.Fprintf(&b, "_Matched a known incident pattern with %s similarity._\n\n", best.FormattedSimilarity())

	if best.Entry.Symptoms != "" {
		fmt.Fprintf(&b, "**Symptoms:** %s\n\n", best.Entry.Symptoms)
	}
	if best.Entry.RootCause != "" {
		fmt.Fprintf(&b, "**Root Cause:** %s\n\n", best.Entry.RootCause)
	}
	if best.Entry.Solution != "" {
		fmt.Fprintf(&b, "**Resolution Steps:**\n%s\n\n", best.Entry.Solution)
	}
	if best.Entry.ResolutionTimeMinutes != nil {
		fmt.Fprintf(&b, "**Expected Resolution Time:** %d minutes\n\n", *best.Entry.ResolutionTimeMinutes)
	}

	var runnersUp []string
	for _, m := range all {
		if m.Entry.ID == best.Entry.ID || m.Entry.Title == "" {
			continue
		}
		runnersUp = append(runnersUp, m.Entry.Title)
		if len(runnersUp) == 2 {
			break
		}
	}
	if len(runnersUp) > 0 {
		b.WriteString("**Also similar:**\n")
		for _, title := range runnersUp {
			fmt.Fprintf(&b, "- %s\n", title)
		}
		b.WriteString("\n")
	}

	b.WriteString("_This solution was applied automatically based on historical incident data._")
	return b.String()
}

// knowledgeReasoning is the fixed reasoning attached to auto-applied solutions
func knowledgeReasoning(best knowledge.Match) string {
	return fmt.Sprintf("Matched knowledge base entry %q with similarity %s, above the auto-apply threshold.",
		best.Entry.Title, best.FormattedSimilarity())
}

// appendKnowledgeSection appends a "Similar Incident Solutions" section with
// every returned match to a classifier suggestion. Returns the suggestion
// unchanged when there are no matches.
func appendKnowledgeSection(suggestion string, matches []knowledge.Match) string {
	if len(matches) == 0 {
		return suggestion
	}

	var b strings.Builder
	b.WriteString(suggestion)
	b.WriteString("\n\n## Similar Incident Solutions\n")

	for _, m := range matches {
		title := m.Entry.Title
		if title == "" {
			title = m.Entry.ID
		}
		fmt.Fprintf(&b, "\n### %s (%s similar)\n", title, m.FormattedSimilarity())
		if m.Entry.RootCause != "" {
			fmt.Fprintf(&b, "- Root cause: %s\n", m.Entry.RootCause)
		}
		if m.Entry.Solution != "" {
			fmt.Fprintf(&b, "- Solution: %s\n", m.Entry.Solution)
		}
		if m.Entry.ResolutionTimeMinutes != nil {
			fmt.Fprintf(&b, "- Expected resolution time: %d minutes\n", *m.Entry.ResolutionTimeMinutes)
		}
		if m.Entry.SuccessRate != nil {
			fmt.Fprintf(&b, "- Historical success rate: %.0f%%\n", *m.Entry.SuccessRate*100)
		}
	}
	return b.String()
}
