// internal/form/extract.go
//
// Adept – Forms subsystem: raw submission extraction.
//
// Context
//   Browsers post every field under the form's namespace:
//
//       settings[site_name]=Acme
//       settings[post_types___page]=1
//
//   extract walks the configured fields (never the submitted keys), so
//   unknown input is ignored.  Per field:
//
//   •  File kinds read the multipart file of the same name and go through
//      the Uploader.  Empty uploads are nil, not errors.
//   •  Repeaters read one sub-field per current option and collect the
//      option values that qualify: "1" for checkable kinds, any non-empty
//      sanitized value otherwise.  Sub-fields for options that no longer
//      exist are dropped.
//   •  Everything else is sanitized by its Kind.  Absent checkable fields
//      become false; other absent fields stay absent.  Encrypted kinds are
//      capped at MaxEncryptedBytes, then sealed.
//
//   When the client posts its rendered list, fields missing from it are not
//   extracted at all.  Their absence says nothing about the user's intent,
//   so they keep their stored values.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/logger"
)

// MaxEncryptedBytes caps plaintext submitted to an encrypted field.
const MaxEncryptedBytes = 1000

const maskText = crypt.MaskText

// renderedKey carries the comma-separated ids the renderer emitted.
const renderedKey = "_rendered"

type extraction struct {
	data      map[string]any
	fieldErrs map[string]*RuleError
	uploads   []*UploadError
	rendered  []string
}

// wasRendered reports whether the client rendered field id.  A nil list
// means the client did not say, and every field counts as rendered.
func wasRendered(rendered []string, id string) bool {
	return rendered == nil || lo.Contains(rendered, id)
}

// namespaced returns name as posted under the form's namespace.
func namespaced(formID, name string) string { return formID + "[" + name + "]" }

func (h *Handler) extract(ctx context.Context, r *http.Request) (*extraction, error) {
	form := h.Form
	ex := &extraction{data: map[string]any{}, fieldErrs: map[string]*RuleError{}}

	if raw, ok := r.PostForm[namespaced(form.ID, renderedKey)]; ok && len(raw) > 0 {
		ex.rendered = []string{}
		for _, id := range strings.Split(raw[0], ",") {
			if id = strings.TrimSpace(id); id != "" {
				ex.rendered = append(ex.rendered, id)
			}
		}
	}

	for _, f := range form.Fields {
		k, ok := h.kinds().Lookup(f.Type)
		if !ok {
			logger.FromContext(ctx).Warnw("unknown field type", "form", form.ID, "field", f.ID, "type", f.Type)
			continue
		}
		if !wasRendered(ex.rendered, f.ID) {
			continue
		}
		switch {
		case k.Upload:
			h.extractFile(ctx, r, f, ex)
		case f.Repeat:
			ex.data[f.ID] = h.extractRepeater(r, f, k)
		default:
			if err := h.extractValue(r, f, k, ex); err != nil {
				return nil, err
			}
		}
	}
	return ex, nil
}

func (h *Handler) extractFile(ctx context.Context, r *http.Request, f *Field, ex *extraction) {
	ex.data[f.ID] = nil
	if r.MultipartForm == nil || h.Uploader == nil {
		return
	}
	files := r.MultipartForm.File[namespaced(h.Form.ID, f.ID)]
	if len(files) == 0 || files[0].Size == 0 {
		return
	}
	v, err := h.Uploader.Upload(ctx, f, files[0])
	if err != nil {
		ue, ok := err.(*UploadError)
		if !ok {
			ue = &UploadError{Field: f.ID, Reason: err.Error()}
		}
		ex.uploads = append(ex.uploads, ue)
		return
	}
	ex.data[f.ID] = v
}

func (h *Handler) extractRepeater(r *http.Request, f *Field, k *Kind) []string {
	out := []string{}
	for _, opt := range f.Options {
		raw, ok := r.PostForm[namespaced(h.Form.ID, f.ID+RepeatSep+opt.Value)]
		if !ok || len(raw) == 0 {
			continue
		}
		if k.Checkable {
			if isChecked(raw[0]) {
				out = append(out, opt.Value)
			}
			continue
		}
		if v, err := k.Sanitize(raw[0], f); err == nil && !isEmpty(v) {
			out = append(out, opt.Value)
		}
	}
	return out
}

func (h *Handler) extractValue(r *http.Request, f *Field, k *Kind, ex *extraction) error {
	raw, present := r.PostForm[namespaced(h.Form.ID, f.ID)]
	if !present || len(raw) == 0 {
		if k.Checkable {
			ex.data[f.ID] = false
		}
		return nil
	}

	v, err := k.Sanitize(raw[0], f)
	if err != nil {
		if re, ok := err.(*RuleError); ok {
			ex.fieldErrs[f.ID] = re
			return nil
		}
		return err
	}

	if k.Encrypt {
		s, _ := v.(string)
		if s != "" {
			if h.Cipher == nil {
				ex.fieldErrs[f.ID] = &RuleError{Code: "encryption", Message: labelOf(f) + " cannot be stored securely."}
				return nil
			}
			if v, err = h.Cipher.Encrypt(s); err != nil {
				return err
			}
		}
	}
	ex.data[f.ID] = v
	return nil
}
