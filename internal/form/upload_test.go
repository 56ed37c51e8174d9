package form

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yanizio/adept-forms/internal/auth"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

// multipartRequest posts fields plus one file under fileField.
func multipartRequest(t *testing.T, fields map[string]string, fileField, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/admin/forms/media", &body)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	r := multipartRequest(t, nil, "f", name, content)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return r.MultipartForm.File["f"][0]
}

func TestDiskUploader(t *testing.T) {
	dir := t.TempDir()
	u := &DiskUploader{Dir: dir, URLPrefix: "https://cdn.example.com/uploads/", MaxBytes: 1024}
	f := &Field{ID: "logo", Accept: []string{"image/png"}}

	v, err := u.Upload(context.Background(), f, fileHeader(t, "logo.png", pngBytes))
	if err != nil {
		t.Fatal(err)
	}
	url, _ := v.(string)
	if !strings.HasPrefix(url, "https://cdn.example.com/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %q", url)
	}
	onDisk, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	if err != nil || !bytes.Equal(onDisk, pngBytes) {
		t.Fatalf("stored file mismatch: %v", err)
	}

	_, err = u.Upload(context.Background(), f, fileHeader(t, "evil.png", []byte("just text, not an image")))
	var ue *UploadError
	if !errors.As(err, &ue) || !strings.Contains(ue.Reason, "not allowed") {
		t.Fatalf("text upload: %v", err)
	}

	_, err = u.Upload(context.Background(), f, fileHeader(t, "big.png", append(pngBytes, make([]byte, 2048)...)))
	if !errors.As(err, &ue) || !strings.Contains(ue.Reason, "exceeds") {
		t.Fatalf("oversize upload: %v", err)
	}
}

func TestProcessFileField(t *testing.T) {
	form := NewBuilder("media").Options("", "").File("logo").Accept("image/png").End().Text("alt").End().MustBuild()
	mem := newMemoryBound(t, form)
	tokens := NewTokens(testKey, time.Hour)
	h := &Handler{
		Form:     form,
		Security: &Security{Tokens: tokens},
		Uploader: &DiskUploader{Dir: t.TempDir(), URLPrefix: "/uploads"},
	}

	send := func(content []byte) *Result {
		vals := signed(t, form, tokens, nil)
		fields := map[string]string{fv(form, "alt"): "Logo"}
		for k := range vals {
			fields[k] = vals.Get(k)
		}
		r := multipartRequest(t, fields, fv(form, "logo"), "logo.png", content)
		ctx := auth.WithUser(context.Background(), testUser)
		return h.Process(ctx, r.WithContext(ctx))
	}

	res := send(pngBytes)
	if res.State != StateSuccess {
		t.Fatalf("state %s: %v %v", res.State, res.Errors, res.Err)
	}
	got, _ := mem.GetOptions(context.Background(), []string{"logo"})
	if s, _ := got["logo"].(string); !strings.HasPrefix(s, "/uploads/") {
		t.Fatalf("logo = %v", got["logo"])
	}

	// A rejected upload drops only that field and keeps the stored value.
	res = send([]byte("plain text"))
	if res.State != StateSuccess || len(res.Notices) != 2 || res.Notices[0].Type != NoticeWarning {
		t.Fatalf("state %s, notices %+v", res.State, res.Notices)
	}
	again, _ := mem.GetOptions(context.Background(), []string{"logo"})
	if again["logo"] != got["logo"] {
		t.Fatalf("logo replaced by %v", again["logo"])
	}
}
