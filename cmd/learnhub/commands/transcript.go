package commands

import (
	"github.com/spf13/cobra"
)

// transcriptCmd fetches captions for a video.
var transcriptCmd = &cobra.Command{
	Use:   "transcript <video-url-or-id>",
	Short: "Fetch a video's transcript",
	Long: `Fetch the captions of a YouTube video. Videos without captions
print their title and description instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

func runTranscript(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	res, err := newClient().Transcript(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON() {
		return printJSON(out, res)
	}

	if res.Available {
		printf(out, "%s\n", res.Transcript)
		return nil
	}

	printf(out, "No captions available for %s.\n", res.VideoID)
	if res.Metadata != nil {
		printf(out, "\nTitle: %s\n\n%s\n", res.Metadata.Title,
			res.Metadata.Description)
	}

	return nil
}
