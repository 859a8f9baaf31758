package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/metrics"
)

// PassRequest is one "take attendance" run over a captured photo.
type PassRequest struct {
	Image    []byte
	Class    string
	Section  string
	Date     civil.Date
	Progress func(done, total int)
}

// Match is a face the classifier accepted.
type Match struct {
	StudentID  int64
	Name       string
	Confidence float64
	FaceIndex  int
}

// UnknownFace is a face the classifier rejected; Index is 1-based.
type UnknownFace struct {
	Index      int
	Confidence float64
}

// PassResult summarises a completed pass.
type PassResult struct {
	PassID        string
	Class         string
	Section       string
	Date          civil.Date
	FacesDetected int
	ModelVersion  int64
	Matches       []Match
	Unknown       []UnknownFace
	Present       int
	Absent        int
	Total         int
}

// TakeAttendance detects and classifies every face in the photo, marks matched
// students Present and every other student of the class/section Absent.
//
// Each write is committed on its own. A capability failure mid-pass leaves the
// earlier writes in place; rerunning the whole pass converges to the same state.
func (s *Service) TakeAttendance(ctx context.Context, req PassRequest) (res PassResult, err error) {
	started := time.Now()
	res = PassResult{PassID: uuid.NewString(), Class: req.Class, Section: req.Section, Date: req.Date}
	logger := log.With().Str("pass_id", res.PassID).Str("class", req.Class).Str("section", req.Section).Str("date", req.Date.String()).Logger()
	defer func() {
		metrics.Passes.WithLabelValues(metrics.Outcome(apperr.Kind(err))).Inc()
		metrics.PassDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			logger.Error().Err(err).Str("kind", apperr.Kind(err)).Msg("attendance pass aborted")
		}
	}()

	if req.Class == "" || req.Section == "" {
		return res, apperr.Invalid("class and section required")
	}
	if !req.Date.IsValid() {
		return res, apperr.Invalid("date required")
	}
	if len(req.Image) == 0 {
		return res, apperr.Invalid("photo required")
	}

	faces, err := s.detector.Detect(ctx, req.Image)
	if err != nil {
		return res, err
	}
	res.FacesDetected = len(faces)
	metrics.Faces.WithLabelValues("detected").Add(float64(len(faces)))

	model, err := s.models.Current(ctx)
	if err != nil {
		return res, err
	}
	res.ModelVersion = model.Version

	matched := make(map[int64]bool)
	for i, face := range faces {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p, err := s.recognizer.Predict(ctx, model, face.Image)
		if err != nil {
			return res, err
		}
		if !p.Matched {
			res.Unknown = append(res.Unknown, UnknownFace{Index: i + 1, Confidence: p.Confidence})
			metrics.Faces.WithLabelValues("unknown").Inc()
		} else {
			st, err := s.repo.GetStudent(ctx, p.StudentID)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return res, apperr.Capability("predict", fmt.Errorf("model version %d returned unknown student %d", model.Version, p.StudentID))
				}
				return res, err
			}
			// A second face matching the same student rewrites Present.
			if err := s.repo.UpsertAttendance(ctx, st.ID, req.Date, StatusPresent); err != nil {
				return res, err
			}
			if !matched[st.ID] {
				res.Matches = append(res.Matches, Match{StudentID: st.ID, Name: st.Name, Confidence: p.Confidence, FaceIndex: i + 1})
			}
			matched[st.ID] = true
			metrics.Faces.WithLabelValues("matched").Inc()
		}
		if req.Progress != nil {
			req.Progress(i+1, len(faces))
		}
	}

	roster, err := s.repo.ListStudents(ctx, req.Class, req.Section)
	if err != nil {
		return res, err
	}
	for _, st := range roster {
		if matched[st.ID] {
			res.Present++
			continue
		}
		if err := s.repo.UpsertAttendance(ctx, st.ID, req.Date, StatusAbsent); err != nil {
			return res, err
		}
		res.Absent++
	}
	res.Total = len(roster)

	logger.Info().
		Int("faces", res.FacesDetected).
		Int("matched", len(res.Matches)).
		Int("unknown", len(res.Unknown)).
		Int("present", res.Present).
		Int("absent", res.Absent).
		Int64("model_version", res.ModelVersion).
		Dur("took", time.Since(started)).
		Msg("attendance pass complete")
	return res, nil
}
