// internal/form/upload.go
//
// Adept – Forms subsystem: file uploads.
//
// Context
//   File fields arrive in the multipart file namespace under the same
//   `formId[fieldId]` key as regular values.  The extractor hands each file
//   to an Uploader and stores whatever reference it returns (DiskUploader
//   returns a public URL).  A failed upload yields an *UploadError and a nil
//   field value; validation then decides whether the field was required.
//
//   DiskUploader sniffs the real content type with mimetype rather than
//   trusting the client's Content-Type, enforces a byte cap, and writes the
//   file under a random name so user-supplied filenames never reach disk.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// Uploader stores one submitted file for field f and returns the value to
// persist.
type Uploader interface {
	Upload(ctx context.Context, f *Field, fh *multipart.FileHeader) (any, error)
}

// DiskUploader writes files into Dir and returns URLPrefix + "/" + name.
type DiskUploader struct {
	Dir          string
	URLPrefix    string
	MaxBytes     int64
	AllowedTypes []string // MIME types; empty allows any
}

// Upload implements Uploader.
func (u *DiskUploader) Upload(_ context.Context, f *Field, fh *multipart.FileHeader) (any, error) {
	limit := u.MaxBytes
	if f.MaxBytes > 0 {
		limit = f.MaxBytes
	}
	if limit > 0 && fh.Size > limit {
		return nil, &UploadError{Field: f.ID, Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	if strings.ContainsAny(fh.Filename, "\x00") || filepath.Base(fh.Filename) == "." {
		return nil, &UploadError{Field: f.ID, Reason: "invalid filename"}
	}

	src, err := fh.Open()
	if err != nil {
		return nil, &UploadError{Field: f.ID, Reason: err.Error()}
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, &UploadError{Field: f.ID, Reason: "unreadable file"}
	}
	allowed := u.AllowedTypes
	if len(f.Accept) > 0 {
		allowed = f.Accept
	}
	if len(allowed) > 0 && !lo.ContainsBy(allowed, func(a string) bool { return mt.Is(a) }) {
		return nil, &UploadError{Field: f.ID, Reason: "file type " + mt.String() + " not allowed"}
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, &UploadError{Field: f.ID, Reason: err.Error()}
	}

	name, err := randomName(mt.Extension())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return nil, &UploadError{Field: f.ID, Reason: "storage unavailable"}
	}
	dst, err := os.OpenFile(filepath.Join(u.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &UploadError{Field: f.ID, Reason: "storage unavailable"}
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return nil, &UploadError{Field: f.ID, Reason: "write failed"}
	}
	if err := dst.Close(); err != nil {
		return nil, &UploadError{Field: f.ID, Reason: "write failed"}
	}
	return strings.TrimRight(u.URLPrefix, "/") + "/" + name, nil
}

func randomName(ext string) (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + ext, nil
}
