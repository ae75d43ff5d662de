// Package mcp exposes learnhub's summaries, transcripts and learning plans as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/learnhub/internal/apiclient"
	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/plan"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
)

// Backend serves the tools. *apiclient.Client implements it against a
// running daemon and Local implements it in process.
type Backend interface {
	Summarize(ctx context.Context, req summary.Request) (*summary.Response,
		error)

	Transcript(ctx context.Context, video string) (*transcript.Result,
		error)

	// GetPlan returns apiclient.ErrPlanNotReady when no plan is stored.
	GetPlan(ctx context.Context, id string) (*plan.Record, error)
}

// Server wraps the MCP server with its backend.
type Server struct {
	server  *mcp.Server
	backend Backend
	log     *slog.Logger
}

// Config holds configuration for the MCP server.
type Config struct {
	// Name is the implementation name reported to clients.
	Name string

	// Version is the implementation version reported to clients.
	Version string
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(cfg Config, backend Backend, log *slog.Logger) *Server {
	if cfg.Name == "" {
		cfg.Name = "learnhub"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		backend: backend,
		log:     log.With("component", "mcp"),
	}
	s.registerTools()

	return s
}

// Run serves the MCP protocol on the given transport until ctx is done or
// the peer disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.log.InfoContext(ctx, "Starting MCP server")

	return s.server.Run(ctx, transport)
}

// registerTools registers the learnhub tools.
func (s *Server) registerTools() {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "summarize_video",
		Description: "Summarize an educational video into an overview, " +
			"key takeaways and next steps. Pass a transcript when you " +
			"have one; otherwise captions are fetched automatically.",
	}, s.handleSummarizeVideo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "fetch_transcript",
		Description: "Fetch the captions of a YouTube video, or its " +
			"title and description when it has none.",
		Annotations: readOnly,
	}, s.handleFetchTranscript)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_learning_plan",
		Description: "Look up a generated learning plan by email or " +
			"request id. Reports ready=false while the plan is still " +
			"being generated.",
		Annotations: readOnly,
	}, s.handleGetLearningPlan)
}

// Local serves the tools from in-process services.
type Local struct {
	Summaries   interface {
		Summarize(ctx context.Context,
			req summary.Request) (*summary.Response, error)
	}
	Transcripts transcript.Provider
	Plans       interface {
		Poll(ctx context.Context, id string) (*plan.Record, error)
	}
}

// Summarize implements Backend.
func (l *Local) Summarize(ctx context.Context,
	req summary.Request) (*summary.Response, error) {

	if l.Summaries == nil {
		return nil, apperr.Configuration("summaries are not enabled")
	}

	return l.Summaries.Summarize(ctx, req)
}

// Transcript implements Backend.
func (l *Local) Transcript(ctx context.Context,
	video string) (*transcript.Result, error) {

	if l.Transcripts == nil {
		return nil, apperr.Configuration("transcripts are not enabled")
	}

	videoID, err := transcript.ParseVideoID(video)
	if err != nil {
		return nil, apperr.Validation("invalid video id %q", video)
	}

	return l.Transcripts.Fetch(ctx, videoID)
}

// GetPlan implements Backend.
func (l *Local) GetPlan(ctx context.Context, id string) (*plan.Record,
	error) {

	if l.Plans == nil {
		return nil, apperr.Configuration("learning plans are not enabled")
	}

	rec, err := l.Plans.Poll(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, errors.Join(apiclient.ErrPlanNotReady, err)
	}

	return rec, err
}

// NOTE: These implement the Backend interface.
var (
	_ Backend = (*Local)(nil)
	_ Backend = (*apiclient.Client)(nil)
)
