package qr

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"quitescan/internal/roster"
)

// Roster is the slice of student persistence the issuer needs.
type Roster interface {
	GetStudent(ctx context.Context, id string) (roster.Student, error)
	StudentsMissingQRImages(ctx context.Context) ([]roster.Student, error)
	SetQRImagePath(ctx context.Context, id, path string) error
}

// Uploader pushes a rendered image to remote storage and returns its URL.
// When nil, images are written under the local media directory instead.
type Uploader interface {
	UploadBytes(data []byte, filename string) (string, error)
}

// Issuer renders QR images for students that hold a token. Rendering is
// best-effort and idempotent: a student with an image already on record is
// skipped, and a render failure never touches the token.
type Issuer struct {
	roster   Roster
	uploader Uploader
	mediaDir string
}

// NewIssuer creates an issuer writing under mediaDir. uploader may be nil.
func NewIssuer(r Roster, mediaDir string, uploader Uploader) *Issuer {
	if mediaDir == "" {
		mediaDir = "media"
	}
	return &Issuer{roster: r, uploader: uploader, mediaDir: mediaDir}
}

// EnsureImage renders and stores the QR image for one student if it is
// missing. It returns the recorded image path.
func (i *Issuer) EnsureImage(ctx context.Context, s roster.Student) (string, error) {
	if s.QRToken == "" {
		return "", fmt.Errorf("qr: student %s has no token", s.StudentID)
	}
	if s.QRImagePath != "" && i.imageExists(s.QRImagePath) {
		return s.QRImagePath, nil
	}

	png, err := Render(s.QRToken)
	if err != nil {
		return "", err
	}

	path := ImageFilename(s.StudentID)
	if i.uploader != nil {
		url, err := i.uploader.UploadBytes(png, filepath.Base(path))
		if err != nil {
			return "", fmt.Errorf("qr: upload image for %s: %w", s.StudentID, err)
		}
		path = url
	} else {
		full := filepath.Join(i.mediaDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("qr: media dir: %w", err)
		}
		if err := os.WriteFile(full, png, 0o644); err != nil {
			return "", fmt.Errorf("qr: write image for %s: %w", s.StudentID, err)
		}
	}

	if err := i.roster.SetQRImagePath(ctx, s.ID, path); err != nil {
		return "", fmt.Errorf("qr: record image path for %s: %w", s.StudentID, err)
	}
	return path, nil
}

// EnsureImageByID looks the student up first; used by queue consumers that
// only carry the row id.
func (i *Issuer) EnsureImageByID(ctx context.Context, id string) (string, error) {
	s, err := i.roster.GetStudent(ctx, id)
	if err != nil {
		return "", err
	}
	return i.EnsureImage(ctx, s)
}

// Backfill renders images for every student holding a token but no image.
// Failures are logged and skipped so one bad row cannot stall the sweep.
func (i *Issuer) Backfill(ctx context.Context) (int, error) {
	students, err := i.roster.StudentsMissingQRImages(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, s := range students {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := i.EnsureImage(ctx, s); err != nil {
			log.Printf("qr backfill: %s: %v", s.StudentID, err)
			continue
		}
		done++
	}
	return done, nil
}

func (i *Issuer) imageExists(path string) bool {
	if i.uploader != nil {
		// Remote URLs are assumed durable once recorded.
		return true
	}
	_, err := os.Stat(filepath.Join(i.mediaDir, filepath.FromSlash(path)))
	return err == nil
}
