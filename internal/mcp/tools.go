package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/learnhub/internal/apiclient"
	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
)

// SummarizeVideoArgs are the arguments for the summarize_video tool.
type SummarizeVideoArgs struct {
	// Title is the video title.
	Title string `json:"title" jsonschema:"Title of the video"`

	// VideoURL is the video's URL.
	VideoURL string `json:"video_url" jsonschema:"URL of the video"`

	// Transcript is the optional caption text.
	Transcript string `json:"transcript,omitempty" jsonschema:"Optional transcript text"`

	// Description is used when no transcript is available.
	Description string `json:"description,omitempty" jsonschema:"Optional video description used when there is no transcript"`
}

// SummarizeVideoResult is the result of the summarize_video tool.
type SummarizeVideoResult struct {
	Summary     string   `json:"summary"`
	Takeaways   []string `json:"takeaways"`
	Actions     []string `json:"actions"`
	ContentType string   `json:"content_type"`
	Truncated   bool     `json:"truncated"`
	Cached      bool     `json:"cached"`
}

func (s *Server) handleSummarizeVideo(ctx context.Context,
	_ *mcp.CallToolRequest,
	args SummarizeVideoArgs) (*mcp.CallToolResult, SummarizeVideoResult,
	error) {

	req := summary.Request{
		Title:      args.Title,
		VideoURL:   args.VideoURL,
		Transcript: args.Transcript,
	}
	if args.Transcript == "" && strings.TrimSpace(args.Description) != "" {
		req.Metadata = &transcript.Metadata{
			Title:       args.Title,
			Description: args.Description,
			URL:         args.VideoURL,
		}
	}

	resp, err := s.backend.Summarize(ctx, req)
	if err != nil {
		return nil, SummarizeVideoResult{}, toolError(err)
	}

	return nil, SummarizeVideoResult{
		Summary:     resp.Summary,
		Takeaways:   resp.Takeaways,
		Actions:     resp.Actions,
		ContentType: string(resp.ContentType),
		Truncated:   resp.IsTruncated,
		Cached:      resp.Cached,
	}, nil
}

// FetchTranscriptArgs are the arguments for the fetch_transcript tool.
type FetchTranscriptArgs struct {
	Video string `json:"video" jsonschema:"YouTube URL or 11 character video id"`
}

// FetchTranscriptResult is the result of the fetch_transcript tool.
type FetchTranscriptResult struct {
	VideoID     string `json:"video_id"`
	Available   bool   `json:"available"`
	Language    string `json:"language,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleFetchTranscript(ctx context.Context,
	_ *mcp.CallToolRequest,
	args FetchTranscriptArgs) (*mcp.CallToolResult, FetchTranscriptResult,
	error) {

	res, err := s.backend.Transcript(ctx, args.Video)
	if err != nil {
		return nil, FetchTranscriptResult{}, toolError(err)
	}

	out := FetchTranscriptResult{
		VideoID:    res.VideoID,
		Available:  res.Available,
		Language:   res.Language,
		Transcript: res.Transcript,
	}
	if res.Metadata != nil {
		out.Title = res.Metadata.Title
		out.Description = res.Metadata.Description
	}

	return nil, out, nil
}

// GetLearningPlanArgs are the arguments for the get_learning_plan tool.
type GetLearningPlanArgs struct {
	ID string `json:"id" jsonschema:"Learner email or plan request id"`
}

// GetLearningPlanResult is the result of the get_learning_plan tool.
type GetLearningPlanResult struct {
	Ready bool      `json:"ready"`
	Plan  *PlanView `json:"plan,omitempty"`
}

// PlanView is a learning plan as shown to tool callers.
type PlanView struct {
	Email          string            `json:"email"`
	ProfileSummary string            `json:"profile_summary"`
	LearningPath   []plan.Module     `json:"learning_path"`
	ActionPlan     []plan.ActionStep `json:"action_plan"`
	ProTips        []string          `json:"pro_tips"`
	ExpiresAt      string            `json:"expires_at"`
}

func (s *Server) handleGetLearningPlan(ctx context.Context,
	_ *mcp.CallToolRequest,
	args GetLearningPlanArgs) (*mcp.CallToolResult, GetLearningPlanResult,
	error) {

	rec, err := s.backend.GetPlan(ctx, args.ID)
	switch {
	case errors.Is(err, apiclient.ErrPlanNotReady):
		return nil, GetLearningPlanResult{Ready: false}, nil

	case err != nil:
		return nil, GetLearningPlanResult{}, toolError(err)
	}

	return nil, GetLearningPlanResult{
		Ready: true,
		Plan: &PlanView{
			Email:          rec.Email,
			ProfileSummary: rec.ProfileSummary,
			LearningPath:   rec.LearningPath,
			ActionPlan:     rec.ActionPlan,
			ProTips:        rec.ProTips,
			ExpiresAt:      rec.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// toolError hides internal detail from tool callers the same way the HTTP
// API does.
func toolError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return errors.New(apperr.PublicMessage(err))
	}

	return err
}
