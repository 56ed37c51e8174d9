// internal/form/handler.go
//
// Adept – Forms subsystem: submission pipeline.
//
// Context
//   One Handler drives one form.  Process takes a request from raw input to
//   persisted state and always returns a *Result; it never returns an error
//   and never lets a panic reach the caller.
//
// Workflow
//   NotSubmitted ─▶ Submitted ─▶ DataExtracted ─▶ Validating ─▶ Valid ─▶ Saving ─▶ Success
//                       │                             │                   │
//                       ▼                             ▼                   ▼
//                 FailedSecurity               FailedValidation       FailedSave
//
//   Any hook error, load failure, or panic ends in FailedProcessing with the
//   error message as the notice.
//
//   •  Hidden fields are dropped from the data map before validation and
//      never reach storage.  Their stored values are left as they were.
//   •  Merge runs per field through the field's Kind (see merge.go).
//   •  Storage writes are not rolled back on partial failure.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/logger"
	"github.com/yanizio/adept-forms/internal/metrics"
	"github.com/yanizio/adept-forms/internal/requestinfo"
)

// State is a step of the submission state machine.
type State int

const (
	StateNotSubmitted State = iota
	StateSubmitted
	StateDataExtracted
	StateValidating
	StateValid
	StateSaving
	StateSuccess
	StateFailedSecurity
	StateFailedValidation
	StateFailedSave
	StateFailedProcessing
)

var stateNames = [...]string{
	"not_submitted",
	"submitted",
	"data_extracted",
	"validating",
	"valid",
	"saving",
	"success",
	"failed_security",
	"failed_validation",
	"failed_save",
	"failed_processing",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s ends a submission.
func (s State) Terminal() bool { return s >= StateSuccess }

// ErrInvalid is passed to OnError when validation fails.
var ErrInvalid = errors.New("form: validation failed")

// defaultMaxMemory bounds multipart parsing held in memory.
const defaultMaxMemory = 8 << 20

// Result is the outcome of Process.
type Result struct {
	State       State
	IsSubmitted bool
	IsValid     bool
	Data        map[string]any    // values handed to the adapter on success
	Submitted   map[string]any    // visible extracted values, for re-rendering
	Errors      map[string]string // field id → message
	Warnings    []Warning
	Notices     []Notice
	Err         error
}

// ActionRunner runs post-success side effects (webhooks, logging).
type ActionRunner interface {
	Run(ctx context.Context, form *Form, data map[string]any)
}

// Handler processes submissions for Form.
type Handler struct {
	Form     *Form
	Kinds    *Registry
	Rules    *RuleSet
	Security *Security
	Uploader Uploader
	Cipher   *crypt.Cipher
	Actions  ActionRunner

	// Debug disables the visibility cache and logs cache statistics.
	Debug     bool
	MaxDepth  int
	MaxMemory int64
}

func (h *Handler) kinds() *Registry {
	if h.Kinds == nil {
		h.Kinds = DefaultKinds()
	}
	return h.Kinds
}

func (h *Handler) rules() *RuleSet {
	if h.Rules == nil {
		h.Rules = DefaultRules()
	}
	return h.Rules
}

func (h *Handler) parse(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		mem := h.MaxMemory
		if mem <= 0 {
			mem = defaultMaxMemory
		}
		return r.ParseMultipartForm(mem)
	}
	return r.ParseForm()
}

// IsSubmitted reports whether r is a submission of this form: the method
// matches and the hidden form_id marker names this form.
func (h *Handler) IsSubmitted(r *http.Request) bool {
	if !strings.EqualFold(r.Method, h.Form.Method) {
		return false
	}
	if err := h.parse(r); err != nil {
		return false
	}
	return r.PostForm.Get(FieldFormID) == h.Form.ID
}

// Conditions returns a visibility engine for this form bound to data.
func (h *Handler) Conditions(ctx context.Context, data map[string]any) *Conditions {
	return NewConditions(h.Form.Fields,
		WithLogger(logger.FromContext(ctx)),
		WithMaxDepth(h.MaxDepth),
		WithCacheDisabled(h.Debug),
	).WithFormData(data)
}

// Process runs the pipeline for r.
func (h *Handler) Process(ctx context.Context, r *http.Request) (res *Result) {
	form := h.Form
	log := logger.FromContext(ctx).With("form", form.ID)
	res = &Result{State: StateNotSubmitted, Errors: map[string]string{}}

	var data map[string]any
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("form processing panic", "panic", p, "stack", string(debug.Stack()))
			err := &ProcessingError{Err: fmt.Errorf("%v", p)}
			h.fail(ctx, log, res, StateFailedProcessing, data, err, err.Error())
		}
		if res.IsSubmitted {
			metrics.Submissions.WithLabelValues(form.ID, res.State.String()).Inc()
			fields := []any{"state", res.State.String(), "errors", len(res.Errors)}
			if info := requestinfo.FromContext(ctx); info != nil && info.Geo.CountryISO != "" {
				fields = append(fields, "country", info.Geo.CountryISO)
			}
			log.Infow("form submission", fields...)
		}
	}()

	if !h.IsSubmitted(r) {
		return res
	}
	res.IsSubmitted = true
	res.State = StateSubmitted

	if err := h.verify(ctx, r); err != nil {
		var se *SecurityError
		if errors.As(err, &se) {
			log.Warnw("security check failed", "check", se.Check, "err", se.Err)
		}
		h.fail(ctx, log, res, StateFailedSecurity, nil, err, err.Error())
		return res
	}

	ex, err := h.extract(ctx, r)
	if err != nil {
		h.processingFailure(ctx, log, res, nil, err)
		return res
	}
	data = ex.data
	res.State = StateDataExtracted
	for _, ue := range ex.uploads {
		log.Warnw("upload rejected", "field", ue.Field, "reason", ue.Reason)
		res.Notices = append(res.Notices, Notice{Type: NoticeWarning, Message: labelOf(form.Field(ue.Field)) + ": " + ue.Reason + "."})
	}

	if hook := form.Hooks.BeforeValidate; hook != nil {
		if data, err = hook(ctx, data); err != nil {
			h.processingFailure(ctx, log, res, data, err)
			return res
		}
	}

	existing, err := h.Stored(ctx)
	if err != nil {
		h.processingFailure(ctx, log, res, data, err)
		return res
	}

	cond := h.Conditions(ctx, data)
	data = cond.FilterHidden(data)
	res.Submitted = data
	res.State = StateValidating

	v := &Validator{Rules: h.rules(), Kinds: h.kinds()}
	vr := v.Validate(form, cond, data, ex.rendered, existing)
	for id, re := range ex.fieldErrs {
		if cond.ShouldShowField(id) {
			vr.Valid = false
			vr.Errors[id] = re.Message
			vr.Codes[id] = re.Code
		}
	}
	res.Warnings = vr.Warnings
	for _, w := range vr.Warnings {
		log.Warnw("form configuration warning", "code", w.Code, "fields", w.Fields)
		res.Notices = append(res.Notices, Notice{Type: NoticeWarning, Message: w.Message})
	}
	if h.Debug {
		hits, misses := cond.CacheStats()
		log.Debugw("conditional cache", "hits", hits, "misses", misses)
	}

	if hook := form.Hooks.AfterValidate; hook != nil {
		hook(ctx, data, vr.Errors)
	}

	if !vr.Valid {
		res.Errors = vr.Errors
		metrics.ValidationErrors.WithLabelValues(form.ID).Add(float64(len(vr.Errors)))
		h.fail(ctx, log, res, StateFailedValidation, data, ErrInvalid, "Please correct the errors below.")
		return res
	}
	res.State = StateValid
	res.IsValid = true

	if hook := form.Hooks.BeforeSave; hook != nil {
		if data, err = hook(ctx, data); err != nil {
			h.processingFailure(ctx, log, res, data, err)
			return res
		}
	}

	merged := h.mergeValues(cond, data, existing, ex.rendered)
	res.State = StateSaving
	err = form.Adapter.Save(ctx, merged)
	if hook := form.Hooks.AfterSave; hook != nil {
		hook(ctx, merged, err == nil)
	}
	if err != nil {
		log.Errorw("form save failed", "err", err)
		h.fail(ctx, log, res, StateFailedSave, merged, &PersistenceError{Err: err}, form.ErrorMessage)
		return res
	}

	res.State = StateSuccess
	res.Data = merged
	res.Notices = append(res.Notices, Notice{Type: NoticeSuccess, Message: form.SuccessMessage})
	if hook := form.Hooks.OnSuccess; hook != nil {
		hook(ctx, merged)
	}
	if h.Actions != nil {
		h.Actions.Run(ctx, form, merged)
	}
	return res
}

func (h *Handler) verify(ctx context.Context, r *http.Request) error {
	if h.Security == nil {
		return deny("config", errors.New("security not configured"))
	}
	return h.Security.Verify(ctx, r, h.Form)
}

// Stored reads the stored values for every configured field.
func (h *Handler) Stored(ctx context.Context) (map[string]any, error) {
	if h.Form.Adapter == nil {
		return nil, errors.New("no storage adapter configured")
	}
	existing, err := h.Form.Adapter.Load(ctx, h.Form.FieldIDs())
	if err != nil {
		return nil, fmt.Errorf("load stored values: %w", err)
	}
	if existing == nil {
		existing = map[string]any{}
	}
	return existing, nil
}

func (h *Handler) processingFailure(ctx context.Context, log *zap.SugaredLogger, res *Result, data map[string]any, err error) {
	log.Errorw("form processing failed", "err", err)
	h.fail(ctx, log, res, StateFailedProcessing, data, &ProcessingError{Err: err}, err.Error())
}

// fail moves res to a terminal failure state and fires OnError.  A panic in
// OnError is logged and swallowed so it cannot escape the pipeline.
func (h *Handler) fail(ctx context.Context, log *zap.SugaredLogger, res *Result, st State, data map[string]any, err error, msg string) {
	res.State = st
	res.IsValid = false
	res.Err = err
	res.Notices = append(res.Notices, Notice{Type: NoticeError, Message: msg})

	hook := h.Form.Hooks.OnError
	if hook == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("on_error hook panic", "panic", p)
		}
	}()
	hook(ctx, data, err)
}
