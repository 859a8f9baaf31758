package attendance

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/classifier"
	"classattend/internal/faceclient"
	"classattend/internal/metrics"
)

// Detector finds faces in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]faceclient.Face, error)
}

// Recognizer trains a classifier and classifies single faces with it.
type Recognizer interface {
	Train(ctx context.Context, samples []faceclient.Sample) ([]byte, error)
	Predict(ctx context.Context, model *classifier.Model, face []byte) (faceclient.Prediction, error)
}

// Models hands out the classifier in use and swaps in retrained ones.
type Models interface {
	Current(ctx context.Context) (*classifier.Model, error)
	Replace(ctx context.Context, blob []byte, samples int) (*classifier.Model, error)
}

// QRCodec encodes identities into QR images and decodes them back.
type QRCodec interface {
	Encode(text string) ([]byte, error)
	Decode(image []byte) (string, bool, error)
}

// Media stores photos and QR images.
type Media interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repo         *Repository
	Detector     Detector
	Recognizer   Recognizer
	Models       Models
	QR           QRCodec
	Media        Media
	PhotoMaxSize int
}

// Service runs attendance passes, manual overrides and enrollment.
type Service struct {
	repo         *Repository
	detector     Detector
	recognizer   Recognizer
	models       Models
	qr           QRCodec
	media        Media
	photoMaxSize int
}

// NewService creates a service from its collaborators.
func NewService(d Deps) *Service {
	if d.PhotoMaxSize <= 0 {
		d.PhotoMaxSize = 1600
	}
	return &Service{
		repo:         d.Repo,
		detector:     d.Detector,
		recognizer:   d.Recognizer,
		models:       d.Models,
		qr:           d.QR,
		media:        d.Media,
		photoMaxSize: d.PhotoMaxSize,
	}
}

// Repo exposes the roster store for reporting.
func (s *Service) Repo() *Repository {
	return s.repo
}

// OverrideInput carries the two ways an operator can name a student.
// Typed wins when both resolve to an identity.
type OverrideInput struct {
	QRImage []byte
	Typed   string
}

// Override marks one student Present for date, bypassing the classifier.
func (s *Service) Override(ctx context.Context, in OverrideInput, date civil.Date) (Student, error) {
	id, source, err := s.resolveIdentity(in)
	if err != nil {
		return Student{}, err
	}
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if err := s.repo.UpsertAttendance(ctx, st.ID, date, StatusPresent); err != nil {
		return Student{}, err
	}
	metrics.Overrides.WithLabelValues(source).Inc()
	log.Info().Int64("student_id", st.ID).Str("source", source).Str("date", date.String()).Msg("manual override: marked present")
	return st, nil
}

func (s *Service) resolveIdentity(in OverrideInput) (int64, string, error) {
	if typed := strings.TrimSpace(in.Typed); typed != "" {
		id, err := ParseStudentID(typed)
		if err == nil {
			return id, "typed", nil
		}
		if len(in.QRImage) == 0 {
			return 0, "", err
		}
	}
	if len(in.QRImage) > 0 {
		if s.qr == nil {
			return 0, "", apperr.Capability("qr decode", errQRUnavailable)
		}
		text, ok, err := s.qr.Decode(in.QRImage)
		if err != nil {
			return 0, "", err
		}
		if !ok {
			return 0, "", apperr.Invalid("no QR code detected")
		}
		id, err := ParseStudentID(text)
		if err != nil {
			return 0, "", apperr.Invalid("QR decoded but %q is not a student id", text)
		}
		return id, "qr", nil
	}
	return 0, "", apperr.Invalid("a QR image or a student id is required")
}

// ParseStudentID parses a positive decimal student identity.
func ParseStudentID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("student id %q must be a positive integer", s)
	}
	return id, nil
}

var errQRUnavailable = errors.New("qr codec not configured")
