package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roasbeef/learnhub/internal/apiclient"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/spf13/cobra"
)

var (
	planEmail       string
	planGoals       []string
	planProfileFile string
	planWaitAfter   bool
	planInterval    time.Duration
	planAttempts    int
)

// planCmd is the parent command for learning plan operations.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Request and manage learning plans",
	Long: `Submit a learner profile, wait for the generated learning plan and
show or delete it.

Plans are generated asynchronously by the workflow engine and kept for a
limited time once delivered.`,
}

// planSubmitCmd submits a learner profile.
var planSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a learner profile for plan generation",
	Long: `Submit a learner profile. The profile is read from --profile-file
(JSON) when given; --email and --goal override its fields.`,
	RunE: runPlanSubmit,
}

// planWaitCmd blocks until a plan is delivered.
var planWaitCmd = &cobra.Command{
	Use:   "wait <email-or-request-id>",
	Short: "Wait for a learning plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanWait,
}

// planShowCmd shows a delivered plan.
var planShowCmd = &cobra.Command{
	Use:   "show <email-or-request-id>",
	Short: "Show a learning plan",
	Long: `Show a delivered learning plan. --format accepts text, markdown,
html or json.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanShow,
}

// planDeleteCmd deletes a plan.
var planDeleteCmd = &cobra.Command{
	Use:   "delete <email-or-request-id>",
	Short: "Delete a learning plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanDelete,
}

func init() {
	planSubmitCmd.Flags().StringVar(
		&planEmail, "email", "", "Learner email",
	)
	planSubmitCmd.Flags().StringSliceVar(
		&planGoals, "goal", nil, "Learning goal (repeatable)",
	)
	planSubmitCmd.Flags().StringVar(
		&planProfileFile, "profile-file", "",
		"JSON file with the full learner profile",
	)
	planSubmitCmd.Flags().BoolVar(
		&planWaitAfter, "wait", false,
		"Wait for the plan after submitting",
	)

	for _, cmd := range []*cobra.Command{planSubmitCmd, planWaitCmd} {
		cmd.Flags().DurationVar(
			&planInterval, "interval", apiclient.DefaultPollInterval,
			"Time between polls",
		)
		cmd.Flags().IntVar(
			&planAttempts, "attempts", apiclient.DefaultPollAttempts,
			"Polls before giving up",
		)
	}

	planCmd.AddCommand(planSubmitCmd)
	planCmd.AddCommand(planWaitCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planDeleteCmd)
}

// buildProfile merges the profile file with the flag overrides.
func buildProfile() (map[string]any, error) {
	profile := make(map[string]any)

	if planProfileFile != "" {
		data, err := os.ReadFile(planProfileFile)
		if err != nil {
			return nil, fmt.Errorf("read profile: %w", err)
		}
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse profile: %w", err)
		}
	}

	if planEmail != "" {
		profile["email"] = planEmail
	}
	if len(planGoals) > 0 {
		profile["learningGoals"] = planGoals
	}

	return profile, nil
}

func runPlanSubmit(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	profile, err := buildProfile()
	if err != nil {
		return err
	}

	client := newClient()
	reply, err := client.SubmitPlan(ctx, profile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if reply.StatusCode >= 300 {
		return fmt.Errorf("workflow engine returned %d: %s",
			reply.StatusCode, strings.TrimSpace(string(reply.Body)))
	}

	if !planWaitAfter {
		if wantJSON() {
			return printJSON(out, map[string]any{
				"requestId":    reply.RequestID,
				"engineStatus": reply.StatusCode,
			})
		}

		printf(out, "Submitted, request id %s\n", reply.RequestID)
		printf(out, "Run `learnhub plan wait %s` to collect the plan.\n",
			reply.RequestID)

		return nil
	}

	return waitAndPrint(cmd, client, reply.RequestID)
}

func runPlanWait(cmd *cobra.Command, args []string) error {
	return waitAndPrint(cmd, newClient(), args[0])
}

// waitAndPrint polls for the plan and prints it.
func waitAndPrint(cmd *cobra.Command, client *apiclient.Client,
	id string) error {

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rec, err := client.WaitForPlan(ctx, id, apiclient.PollConfig{
		Interval:    planInterval,
		MaxAttempts: planAttempts,
	})
	if errors.Is(err, apiclient.ErrPlanNotReady) {
		return fmt.Errorf("no plan for %s after %d attempts", id,
			planAttempts)
	}
	if err != nil {
		return err
	}

	return printPlan(cmd, rec)
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rec, err := newClient().GetPlan(ctx, args[0])
	if err != nil {
		return err
	}

	return printPlan(cmd, rec)
}

func runPlanDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := newClient().DeletePlan(ctx, args[0]); err != nil {
		return err
	}

	printf(cmd.OutOrStdout(), "Deleted %s\n", args[0])

	return nil
}

// printPlan prints rec in the requested format.
func printPlan(cmd *cobra.Command, rec *plan.Record) error {
	out := cmd.OutOrStdout()

	switch outputFormat {
	case "json":
		return printJSON(out, rec)

	case "html":
		html, err := renderPlanHTML(rec)
		if err != nil {
			return err
		}
		_, err = out.Write(html)

		return err

	default:
		_, err := out.Write([]byte(renderPlanMarkdown(rec)))
		return err
	}
}
