// internal/component/deps.go
//
// Shared resources handed to every Component during Init.
//
// cmd/web builds one Deps after config, storage, crypto, and the webhook
// dispatcher are online.  Components keep what they need; none of them
// open their own connections.

package component

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/form"
)

// Deps exposes process-wide resources to Components during Init.
type Deps struct {
	DB       *sqlx.DB // nil when running on the in-memory store
	Stores   form.Stores
	Kinds    *form.Registry
	Tokens   *form.Tokens
	Security *form.Security
	Uploader form.Uploader
	Cipher   *crypt.Cipher
	Actions  form.ActionRunner
	Log      *zap.SugaredLogger

	// Conditional engine switches.
	DebugConditionals bool
	MaxDepth          int
}

// Handler returns a submission handler for f wired to the shared resources.
func (d Deps) Handler(f *form.Form) *form.Handler {
	return &form.Handler{
		Form:     f,
		Kinds:    d.Kinds,
		Security: d.Security,
		Uploader: d.Uploader,
		Cipher:   d.Cipher,
		Actions:  d.Actions,
		Debug:    d.DebugConditionals,
		MaxDepth: d.MaxDepth,
	}
}
