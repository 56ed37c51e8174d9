// internal/form/hooks.go
//
// Adept – Forms subsystem: lifecycle hooks and notices.
//
// Context
//   Hooks let first-party code observe or adjust a submission at fixed
//   points.  All are optional.  BeforeValidate and BeforeSave may replace
//   the data map or return an error, which aborts the submission as a
//   processing failure whose message is shown to the user.
//
//       BeforeValidate → AfterValidate → BeforeSave → AfterSave
//                                                   → OnSuccess | OnError
//
//------------------------------------------------------------------------------

package form

import "context"

// Hooks holds the six lifecycle callbacks.
type Hooks struct {
	BeforeValidate func(ctx context.Context, data map[string]any) (map[string]any, error)
	AfterValidate  func(ctx context.Context, data map[string]any, errors map[string]string)
	BeforeSave     func(ctx context.Context, data map[string]any) (map[string]any, error)
	AfterSave      func(ctx context.Context, data map[string]any, success bool)
	OnSuccess      func(ctx context.Context, data map[string]any)
	OnError        func(ctx context.Context, data map[string]any, err error)
}

// NoticeType mirrors the admin notice classes.
type NoticeType string

const (
	NoticeSuccess NoticeType = "success"
	NoticeError   NoticeType = "error"
	NoticeWarning NoticeType = "warning"
	NoticeInfo    NoticeType = "info"
)

// Notice is one message shown above the form.
type Notice struct {
	Type    NoticeType
	Message string
}
