package summary

import (
	"strings"

	"github.com/roasbeef/learnhub/internal/llm"
)

// responseShape describes the JSON object every template asks for.
const responseShape = `Respond with ONLY a JSON object of this exact shape:
{
  "summary": "<2-4 sentence overview of what the video teaches>",
  "takeaways": ["<key takeaway>", "... at most 5"],
  "actions": ["<concrete next step for the learner>", "... at most 3"]
}
Do not wrap the JSON in markdown and do not add commentary.`

// transcriptSystemPrompt is used when captions are available.
const transcriptSystemPrompt = `You are an expert educational content ` +
	`analyst. You turn video transcripts into study notes that help ` +
	`learners decide what to focus on.

` + responseShape

// metadataSystemPrompt is used when a video has no captions and only its
// title and description are known.
const metadataSystemPrompt = `You are an expert educational content ` +
	`analyst. The video has no transcript. Using only its title and ` +
	`description, infer the educational content it most likely covers ` +
	`and what a learner should take away from it. Be explicit that the ` +
	`summary is inferred, and never invent specific claims, numbers or ` +
	`quotes.

` + responseShape

// promptTemplate builds the prompt pair for one content type.
type promptTemplate struct {
	system string
	user   func(in promptInput) string
}

// promptInput is the data a template renders.
type promptInput struct {
	title       string
	url         string
	transcript  string
	description string
	truncated   bool
}

// templates maps each content type to its prompt template.
var templates = map[ContentType]promptTemplate{
	ContentTranscript: {
		system: transcriptSystemPrompt,
		user:   buildTranscriptPrompt,
	},
	ContentMetadata: {
		system: metadataSystemPrompt,
		user:   buildMetadataPrompt,
	},
}

// buildTranscriptPrompt renders the user turn for a captioned video.
func buildTranscriptPrompt(in promptInput) string {
	var sb strings.Builder

	sb.WriteString("Video title: " + in.title + "\n")
	sb.WriteString("Video URL: " + in.url + "\n")
	if in.truncated {
		sb.WriteString("Note: the transcript was shortened; summarize " +
			"what is present.\n")
	}

	sb.WriteString("\n--- TRANSCRIPT ---\n")
	sb.WriteString(in.transcript)
	sb.WriteString("\n--- END ---")

	return sb.String()
}

// buildMetadataPrompt renders the user turn for an uncaptioned video.
func buildMetadataPrompt(in promptInput) string {
	description := strings.TrimSpace(in.description)
	if description == "" {
		description = "(no description provided)"
	}

	return "Video title: " + in.title + "\n" +
		"Video URL: " + in.url + "\n" +
		"Video description:\n" + description
}

// buildRequest renders the generation request for the given content type.
func buildRequest(kind ContentType, in promptInput, cfg Config) llm.Request {
	tmpl := templates[kind]

	return llm.Request{
		System:      tmpl.system,
		User:        tmpl.user(in),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
		JSON:        true,
	}
}
