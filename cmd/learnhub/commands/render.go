package commands

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown converts plan markdown to HTML. Raw HTML in engine output is
// escaped by goldmark's default renderer.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderPlanMarkdown renders a plan as markdown.
func renderPlanMarkdown(rec *plan.Record) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Learning plan for %s\n\n", rec.Email)
	if rec.ProfileSummary != "" {
		fmt.Fprintf(&sb, "%s\n\n", rec.ProfileSummary)
	}

	if len(rec.LearningPath) > 0 {
		sb.WriteString("## Learning path\n\n")
	}
	for i, m := range rec.LearningPath {
		number := m.Number
		if number == 0 {
			number = i + 1
		}

		fmt.Fprintf(&sb, "### %d. %s", number, m.Title)
		if m.Duration != "" {
			fmt.Fprintf(&sb, " (%s)", m.Duration)
		}
		sb.WriteString("\n\n")

		if m.Objective != "" {
			fmt.Fprintf(&sb, "%s\n\n", m.Objective)
		}

		for _, r := range m.Resources {
			name := r.Name
			if r.Link != "" {
				name = fmt.Sprintf("[%s](%s)", r.Name, r.Link)
			}

			fmt.Fprintf(&sb, "- **%s** %s", r.Type, name)
			if r.DurationEstimate != "" {
				fmt.Fprintf(&sb, ", %s", r.DurationEstimate)
			}
			if r.Rationale != "" {
				fmt.Fprintf(&sb, ": %s", r.Rationale)
			}
			sb.WriteString("\n")
		}
		if len(m.Resources) > 0 {
			sb.WriteString("\n")
		}
	}

	if len(rec.ActionPlan) > 0 {
		sb.WriteString("## Action plan\n\n")
		for i, a := range rec.ActionPlan {
			step := a.Step
			if step == 0 {
				step = i + 1
			}

			fmt.Fprintf(&sb, "%d. %s", step, a.Action)
			if a.Timeline != "" {
				fmt.Fprintf(&sb, " (%s)", a.Timeline)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(rec.ProTips) > 0 {
		sb.WriteString("## Pro tips\n\n")
		for _, tip := range rec.ProTips {
			fmt.Fprintf(&sb, "- %s\n", tip)
		}
		sb.WriteString("\n")
	}

	if !rec.ExpiresAt.IsZero() {
		fmt.Fprintf(&sb, "_Available until %s._\n",
			rec.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}

	return sb.String()
}

// renderPlanHTML renders a plan as an HTML fragment.
func renderPlanHTML(rec *plan.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(
		[]byte(renderPlanMarkdown(rec)), &buf,
	); err != nil {
		return nil, fmt.Errorf("render plan: %w", err)
	}

	return buf.Bytes(), nil
}
