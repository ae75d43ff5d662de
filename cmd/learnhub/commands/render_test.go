package commands

import (
	"strings"
	"testing"

	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/stretchr/testify/require"
)

func testRecord() *plan.Record {
	return &plan.Record{
		Email:          "jane@x.com",
		ProfileSummary: "Backend engineer moving into design.",
		LearningPath: []plan.Module{
			{
				Title:     "Foundations",
				Duration:  "2 weeks",
				Objective: "Learn the basics.",
				Resources: []plan.Resource{
					{
						Type:             plan.ResourceYouTube,
						Name:             "Intro",
						Link:             "https://youtu.be/dQw4w9WgXcQ",
						DurationEstimate: "1h",
					},
					{
						Type: plan.ResourceArticle,
						Name: "<script>alert(1)</script>",
					},
				},
			},
		},
		ActionPlan: []plan.ActionStep{
			{Action: "Watch the intro", Timeline: "Day 1"},
		},
		ProTips: []string{"Practice daily"},
	}
}

func TestRenderPlanMarkdown(t *testing.T) {
	md := renderPlanMarkdown(testRecord())

	require.Contains(t, md, "# Learning plan for jane@x.com")
	require.Contains(t, md, "### 1. Foundations (2 weeks)")
	require.Contains(t, md,
		"- **YouTube** [Intro](https://youtu.be/dQw4w9WgXcQ), 1h")
	require.Contains(t, md, "1. Watch the intro (Day 1)")
	require.Contains(t, md, "- Practice daily")
	require.NotContains(t, md, "Available until")
}

func TestRenderPlanHTML(t *testing.T) {
	html, err := renderPlanHTML(testRecord())
	require.NoError(t, err)

	out := string(html)
	require.Contains(t, out, "<h1>Learning plan for ")
	require.Contains(t, out,
		`<a href="https://youtu.be/dQw4w9WgXcQ">Intro</a>`)
	require.True(t, strings.Contains(out, "<ol>"))

	// Engine supplied markup is not passed through.
	require.NotContains(t, out, "<script>")
}
