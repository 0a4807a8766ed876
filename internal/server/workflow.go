package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"arccs/internal/assessor"
	"arccs/internal/batch"
	"arccs/internal/config"
	"arccs/internal/dedup"
	"arccs/internal/history"
	"arccs/internal/ingest"
	"arccs/internal/policy"
	"arccs/internal/progress"
	"arccs/internal/quality"
	"arccs/internal/render"
	"arccs/internal/report"
	"arccs/internal/session"
)

// maxUploadBytes caps upload size at 16 MB, matching the old limit.
const maxUploadBytes = 16 << 20

// uploadBody returns the uploaded payload: the "file" part of a
// multipart form, or the raw request body otherwise.
func uploadBody(r *http.Request) (name string, data []byte, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("no file provided")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("reading upload: %w", err)
		}
		return header.Filename, data, nil
	}

	data, err = io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading body: %w", err)
	}
	// Raw-body uploads name themselves through a header.
	name = r.Header.Get("X-Filename")
	if name == "" {
		name = "upload.json"
	}
	return name, data, nil
}

// handleUploadRegulations ingests a regulation set, quality-filters it,
// deduplicates the kept portion, and stores the survivors in the session.
func (s *Server) handleUploadRegulations(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(r)

	name, data, err := uploadBody(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ingest.Allowed(name) {
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", name))
		return
	}

	regs, err := ingest.ParseRegulations(data)
	if err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("parsing regulations: %v", err))
		return
	}

	settings, err := config.Load(s.settingsPath)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess := s.sessions.GetOrCreate(sessionID)
	sink := s.hub.sink(sess.ID)

	part := quality.Filter(regs, settings.QualityThreshold, sink)
	deduped := dedup.Deduplicate(part.Kept, dedup.DefaultConfig())

	s.sessions.Update(sess.ID, func(sess *session.Session) {
		sess.Regulations = deduped.Regulations
		sess.Report = nil
	})

	s.log.Info("regulations uploaded",
		zap.String("session_id", sess.ID),
		zap.Int("parsed", len(regs)),
		zap.Int("kept", len(deduped.Regulations)),
	)

	s.respond(w, http.StatusOK, map[string]any{
		"success":      true,
		"session_id":   sess.ID,
		"count":        len(deduped.Regulations),
		"filter_stats": part.Stats,
		"merged":       deduped.Log,
	})
}

// handleUploadProposal ingests the document to be checked and stores it
// in the session.
func (s *Server) handleUploadProposal(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(r)

	name, data, err := uploadBody(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := ingest.ParseDocument(name, data)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.sessions.GetOrCreate(sessionID)
	s.sessions.Update(sess.ID, func(sess *session.Session) {
		sess.Document = doc
		sess.Report = nil
	})

	s.respond(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"name":       doc.Name,
		"hash":       doc.Hash,
		"characters": len(doc.Text),
		"sections":   len(doc.Sections),
	})
}

// handleRunCheck runs the compliance batch for the session's regulations
// against its document and stores the aggregated report.
func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(s.sessionID(r))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "unknown session; upload documents first")
		return
	}
	if len(sess.Regulations) == 0 {
		s.fail(w, http.StatusBadRequest, "no regulations found; upload a regulation set first")
		return
	}
	if sess.Document == nil {
		s.fail(w, http.StatusBadRequest, "no proposal found; upload a proposal document first")
		return
	}

	settings, err := config.Load(s.settingsPath)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	a, err := s.newAssessor(settings.Model, assessor.ModelConfig{})
	if err != nil {
		s.fail(w, http.StatusInternalServerError, fmt.Sprintf("configuring assessor: %v", err))
		return
	}

	hubSink := s.hub.sink(sess.ID)
	zapSink := progress.NewZapSink(s.log)
	sink := progress.Func(func(ev progress.Event) {
		hubSink.Emit(ev)
		zapSink.Emit(ev)
	})

	regs := sess.Regulations
	if len(regs) > settings.MaxRegulations {
		sink.Emit(progress.Event{
			Message: fmt.Sprintf("Limiting to first %d regulations (total: %d)", settings.MaxRegulations, len(regs)),
			Level:   progress.LevelWarning,
		})
		regs = regs[:settings.MaxRegulations]
	}

	orch := batch.New(a, batch.Options{
		Concurrency:     settings.Concurrency,
		MinQualityScore: settings.QualityThreshold,
		Policy:          policy.Config{ConfidenceThreshold: settings.ConfidenceThreshold},
	}, sink)

	results, err := orch.Run(r.Context(), regs, sess.Document.Text)
	if err != nil {
		var ce *batch.ConfigError
		if errors.As(err, &ce) {
			s.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	rep := report.Aggregate(results, time.Now())
	s.sessions.Update(sess.ID, func(sess *session.Session) {
		sess.Report = &rep
	})

	if settings.AutoSaveReports {
		if _, err := s.history.Add(history.Entry{
			DocumentName:    sess.Document.Name,
			RegulationCount: len(regs),
			OverallStatus:   rep.OverallStatus,
			Summary:         rep.Summary,
			Report:          &rep,
		}); err != nil {
			s.log.Warn("saving run to history", zap.Error(err))
		}
	}

	s.respond(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"report":     rep,
	})
}

// handleExportReport renders the session's report in the requested
// format as a download.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(s.sessionID(r))
	if err != nil || sess.Report == nil {
		s.fail(w, http.StatusBadRequest, "no report available; run a compliance check first")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	renderer, err := render.NewRenderer(format)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := renderer.Render(sess.Report)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType, ext := "application/json", "json"
	if format == "md" || format == "markdown" {
		contentType, ext = "text/markdown; charset=utf-8", "md"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=compliance_report.%s", ext))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// handleReset clears the session's workflow state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.GetOrCreate(s.sessionID(r))
	s.sessions.Reset(sess.ID)
	s.respond(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
	})
}
