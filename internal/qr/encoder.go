package qr

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/campuskit/qrattend/internal/models"
)

// DefaultImageSize is the edge length in pixels of generated QR images.
const DefaultImageSize = 256

// Config describes where generated QR images live and how they are served.
type Config struct {
	// BaseURL is the externally reachable root of the service, used to build
	// the attendance URL the QR code encodes.
	BaseURL string
	// StorageDir is the directory PNG files are written to.
	StorageDir string
	// PublicPath is the URL path prefix under which StorageDir is served.
	PublicPath string
	// ImageSize overrides the PNG edge length in pixels.
	ImageSize int
}

// Session is the immutable input a QR code is derived from. The same session
// always yields the same payload and the same image bytes.
type Session struct {
	CourseID    string
	Title       string
	Day         string
	StartTime   string
	EndTime     string
	GeneratedAt time.Time
}

// Encoder turns course sessions into QR code images on disk.
type Encoder struct {
	baseURL    string
	storageDir string
	publicPath string
	size       int
}

// NewEncoder validates the configuration and returns an Encoder.
func NewEncoder(cfg Config) (*Encoder, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("qr encoder: base url is required")
	}

	storageDir := strings.TrimSpace(cfg.StorageDir)
	if storageDir == "" {
		return nil, errors.New("qr encoder: storage dir is required")
	}

	publicPath := strings.Trim(strings.TrimSpace(cfg.PublicPath), "/")
	if publicPath == "" {
		publicPath = "media/qrcodes"
	}

	size := cfg.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}

	return &Encoder{
		baseURL:    baseURL,
		storageDir: storageDir,
		publicPath: publicPath,
		size:       size,
	}, nil
}

// StorageDir reports the directory generated images are written to.
func (e *Encoder) StorageDir() string { return e.storageDir }

// PublicPath reports the URL path prefix the storage directory is served under.
func (e *Encoder) PublicPath() string { return e.publicPath }

// Payload builds the deterministic attendance URL the QR code encodes. The
// generation timestamp is part of it, so regenerating a code produces a new
// session while the course data stays stable.
func (e *Encoder) Payload(session Session) string {
	values := url.Values{}
	values.Set("session", fmt.Sprintf("%d", session.GeneratedAt.UTC().Unix()))
	if session.Title != "" {
		values.Set("title", session.Title)
	}
	if session.Day != "" {
		values.Set("day", session.Day)
	}
	if session.StartTime != "" && session.EndTime != "" {
		values.Set("time", session.StartTime+"-"+session.EndTime)
	}

	return fmt.Sprintf("%s/attend/%s?%s", e.baseURL, session.CourseID, values.Encode())
}

// Encode renders the session payload as PNG bytes.
func (e *Encoder) Encode(session Session) ([]byte, error) {
	if strings.TrimSpace(session.CourseID) == "" {
		return nil, errors.New("qr encoder: course id is required")
	}

	png, err := qrcode.Encode(e.Payload(session), qrcode.Medium, e.size)
	if err != nil {
		return nil, fmt.Errorf("qr encoder: encode: %w", err)
	}
	return png, nil
}

// Generate encodes the session, writes the PNG under the storage directory,
// and returns the public URL of the stored image. Storage failures are
// returned to the caller rather than silently producing a dangling URL.
func (e *Encoder) Generate(session Session) (string, error) {
	png, err := e.Encode(session)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.storageDir, 0o755); err != nil {
		return "", fmt.Errorf("qr encoder: create storage dir: %w", err)
	}

	filename := e.Filename(session)
	path := filepath.Join(e.storageDir, filename)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("qr encoder: write image: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", e.baseURL, e.publicPath, filename), nil
}

// Filename names the stored image after the course and generation time.
func (e *Encoder) Filename(session Session) string {
	return fmt.Sprintf("course_%s_%d.png", session.CourseID, session.GeneratedAt.UTC().Unix())
}

// SessionFromCourse derives the QR session for a course at the given time.
func SessionFromCourse(course *models.Course, at time.Time) Session {
	return Session{
		CourseID:    course.ID,
		Title:       course.Title,
		Day:         course.Day,
		StartTime:   course.StartTime,
		EndTime:     course.EndTime,
		GeneratedAt: at,
	}
}
