package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
	"github.com/spf13/cobra"
)

var (
	summarizeTitle          string
	summarizeTranscriptFile string
	summarizeDescription    string
)

// summarizeCmd summarizes a video.
var summarizeCmd = &cobra.Command{
	Use:   "summarize <video-url>",
	Short: "Summarize an educational video",
	Long: `Summarize a video into an overview, key takeaways and next steps.

Without --transcript-file or --description the server fetches captions
itself, falling back to the video's title and description.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVar(
		&summarizeTitle, "title", "", "Video title (required)",
	)
	summarizeCmd.Flags().StringVar(
		&summarizeTranscriptFile, "transcript-file", "",
		"Read the transcript from this file (- for stdin)",
	)
	summarizeCmd.Flags().StringVar(
		&summarizeDescription, "description", "",
		"Video description, used when there is no transcript",
	)
	_ = summarizeCmd.MarkFlagRequired("title")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	req := summary.Request{
		Title:    summarizeTitle,
		VideoURL: args[0],
	}

	if summarizeTranscriptFile != "" {
		text, err := readInput(cmd.InOrStdin(), summarizeTranscriptFile)
		if err != nil {
			return err
		}
		req.Transcript = text
	} else if summarizeDescription != "" {
		req.Metadata = &transcript.Metadata{
			Title:       summarizeTitle,
			Description: summarizeDescription,
			URL:         args[0],
		}
	}

	resp, err := newClient().Summarize(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON() {
		return printJSON(out, resp)
	}

	printSummary(out, resp)

	return nil
}

// printSummary renders a summary for the terminal.
func printSummary(w io.Writer, resp *summary.Response) {
	printf(w, "%s\n", resp.Summary)

	if len(resp.Takeaways) > 0 {
		printf(w, "\nKey takeaways:\n")
		for _, t := range resp.Takeaways {
			printf(w, "  - %s\n", t)
		}
	}
	if len(resp.Actions) > 0 {
		printf(w, "\nNext steps:\n")
		for i, a := range resp.Actions {
			printf(w, "  %d. %s\n", i+1, a)
		}
	}

	var notes []string
	notes = append(notes, "from "+string(resp.ContentType))
	if resp.IsTruncated {
		notes = append(notes, "transcript truncated")
	}
	if resp.Cached {
		notes = append(notes, "cached")
	}
	printf(w, "\n(%s)\n", strings.Join(notes, ", "))
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}
