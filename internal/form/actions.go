// internal/form/actions.go
//
// Adept – Forms subsystem: post-save actions.
//
// Context
//   A form may declare actions that run after a successful save.  Actions
//   are side effects only: a failing action is logged and never changes the
//   submission result.
//
//       actions:
//         - type: webhook
//           url: https://hooks.example.com/settings
//           header.X-Token: abc
//         - type: store
//           table: form_submission
//         - type: log
//
//   •  webhook – JSON body queued on the message dispatcher, so the admin
//      request returns without waiting on the remote end.
//   •  store   – one audit row per submission (MySQL, JSON column).
//   •  log     – the saved field ids at INFO.
//
//   Encrypted values leave the process as ciphertext.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/adept-forms/internal/logger"
)

// ActionDef configures one post-save action.  Provider-specific keys are
// kept inline.
type ActionDef struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:",inline"`
}

// knownActions lists the types Actions.Run understands.
var knownActions = map[string]bool{"webhook": true, "store": true, "log": true}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// WebhookQueue accepts outbound requests for asynchronous delivery.
type WebhookQueue interface {
	Enqueue(ctx context.Context, req *http.Request) error
}

// Actions runs ActionDefs.  Nil collaborators make their action type fail
// with a log entry.
type Actions struct {
	Webhooks WebhookQueue
	DB       *sqlx.DB
	Now      func() time.Time
}

// Run implements ActionRunner.
func (a *Actions) Run(ctx context.Context, form *Form, data map[string]any) {
	log := logger.FromContext(ctx)
	for _, ac := range form.Actions {
		var err error
		switch ac.Type {
		case "webhook":
			err = a.webhook(ctx, form, ac.Params, data)
		case "store":
			err = a.store(ctx, form, ac.Params, data)
		case "log":
			ids := make([]string, 0, len(data))
			for k := range data {
				ids = append(ids, k)
			}
			sort.Strings(ids)
			log.Infow("form saved", "form", form.ID, "fields", ids)
		default:
			log.Warnw("form action warning", "form", form.ID, "action", ac.Type, "warning", "unsupported action")
			continue
		}
		if err != nil {
			log.Errorw("form action failed", "form", form.ID, "action", ac.Type, "error", err.Error())
		}
	}
}

func (a *Actions) webhook(ctx context.Context, form *Form, p, data map[string]any) error {
	if a.Webhooks == nil {
		return fmt.Errorf("no webhook queue configured")
	}
	url, _ := p["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook action requires 'url'")
	}
	method, _ := p["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(map[string]any{"form": form.ID, "data": data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p {
		if strings.HasPrefix(k, "header.") {
			req.Header.Set(strings.TrimPrefix(k, "header."), fmt.Sprint(v))
		}
	}
	return a.Webhooks.Enqueue(ctx, req)
}

func (a *Actions) store(ctx context.Context, form *Form, p, data map[string]any) error {
	if a.DB == nil {
		return fmt.Errorf("no database configured")
	}
	table, _ := p["table"].(string)
	if table == "" {
		table = "form_submission"
	}
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	j, err := json.Marshal(data)
	if err != nil {
		return err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	_, err = a.DB.ExecContext(ctx,
		`INSERT INTO `+table+` (form_id, submitted_at, data) VALUES (?, ?, ?)`,
		form.ID, now().UTC(), j,
	)
	return err
}
