package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/summary"
	"github.com/roasbeef/learnhub/internal/transcript"
)

// PlanRequestIDHeader carries the request id minted for a plan submission.
const PlanRequestIDHeader = "X-Plan-Request-Id"

// readBody reads a bounded request body. An oversized body is a validation
// error.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte,
	error) {

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("request body exceeds %d bytes",
				tooLarge.Limit)
		}

		return nil, apperr.Wrap(apperr.KindValidation,
			"failed to read request body", err)
	}

	return body, nil
}

// decodeJSON reads the request body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request,
	v any) error {

	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
	}

	return nil
}

// handleAPIV1PlanSubmit handles POST /api/v1/learning-plan/submit. The
// workflow engine's status, content type and body are relayed unchanged.
func (s *Server) handleAPIV1PlanSubmit(w http.ResponseWriter,
	r *http.Request) {

	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Plans == nil {
		s.writeAppError(w, r, apperr.Configuration("learning plans "+
			"are not enabled"))
		return
	}

	var profile map[string]any
	if err := s.decodeJSON(w, r, &profile); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if profile == nil {
		s.writeAppError(w, r, apperr.Validation("profile must be a "+
			"JSON object"))
		return
	}

	res, err := s.deps.Plans.Submit(r.Context(), profile)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.Header().Set(PlanRequestIDHeader, res.RequestID)
	w.WriteHeader(res.StatusCode)
	if _, err := w.Write(res.Body); err != nil {
		s.log.WarnContext(r.Context(), "Failed to relay engine reply",
			"err", err)
	}
}

// handleAPIV1PlanWebhook handles POST /api/v1/learning-plan/webhook, the
// workflow engine's completion callback.
func (s *Server) handleAPIV1PlanWebhook(w http.ResponseWriter,
	r *http.Request) {

	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Plans == nil {
		s.writeAppError(w, r, apperr.Configuration("learning plans "+
			"are not enabled"))
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	res, err := s.deps.Plans.HandleCallback(r.Context(), body)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

// handleAPIV1Plan handles GET and DELETE /api/v1/learning-plan?id=.
func (s *Server) handleAPIV1Plan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Plans == nil {
		s.writeAppError(w, r, apperr.Configuration("learning plans "+
			"are not enabled"))
		return
	}

	id := r.URL.Query().Get("id")

	switch r.Method {
	case http.MethodGet:
		record, err := s.deps.Plans.Poll(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		if err := s.deps.Plans.Delete(r.Context(), id); err != nil {
			s.writeAppError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		s.methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// handleAPIV1Summarize handles POST /api/v1/summarize.
func (s *Server) handleAPIV1Summarize(w http.ResponseWriter,
	r *http.Request) {

	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Summaries == nil {
		s.writeAppError(w, r, apperr.Configuration("summaries are "+
			"not enabled"))
		return
	}

	var req summary.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	resp, err := s.deps.Summaries.Summarize(r.Context(), req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIV1Transcript handles GET /api/v1/transcript?videoId=. A video
// without captions is a 200 with available set to false.
func (s *Server) handleAPIV1Transcript(w http.ResponseWriter,
	r *http.Request) {

	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Transcripts == nil {
		s.writeAppError(w, r, apperr.Configuration("transcripts are "+
			"not enabled"))
		return
	}

	input := r.URL.Query().Get("videoId")
	if input == "" {
		input = r.URL.Query().Get("url")
	}

	videoID, err := transcript.ParseVideoID(input)
	if err != nil {
		s.writeAppError(w, r, apperr.Validation("invalid video id %s",
			strconv.Quote(input)))
		return
	}

	res, err := s.deps.Transcripts.Fetch(r.Context(), videoID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindUnreachable,
				"transcript lookup failed", err)
		}
		s.writeAppError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}
