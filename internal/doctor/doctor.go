// Package doctor validates hookq configuration and queue store reachability.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/hookq/internal/config"
	"github.com/mattjoyce/hookq/internal/storage"
	"github.com/mattjoyce/hookq/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Pinger is the part of a queue store the doctor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// minSecretLength is the shortest app secret accepted without a warning.
const minSecretLength = 16

var unresolvedRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg   *config.Config
	store Pinger
}

// New creates a Doctor. store may be nil to skip the reachability check.
func New(cfg *config.Config, store Pinger) *Doctor {
	return &Doctor{cfg: cfg, store: store}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateServer(r)
	d.validateWebhook(r)
	d.validateQueue(r)
	d.warnWeakSecrets(r)
	d.warnUnresolvedEnvVars(r)
	d.warnDeprecatedAlgorithm(r)
	d.warnPayloadLogging(r)
	d.checkStore(ctx, r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	switch strings.ToLower(d.cfg.Service.LogLevel) {
	case "":
		d.addError(r, "service", "service.log_level", "log_level is required (LOG_LEVEL)")
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q (want debug, info, warn, error)", d.cfg.Service.LogLevel))
	}
	if d.cfg.Service.Name == "" {
		d.addWarning(r, "service", "service.name", "service name is empty; traces will be unlabeled")
	}
}

func (d *Doctor) validateServer(r *Result) {
	if d.cfg.Server.Port == "" {
		d.addError(r, "server", "server.port", "port is required (PORT)")
	} else if p, err := strconv.Atoi(d.cfg.Server.Port); err != nil || p < 1 || p > 65535 {
		d.addError(r, "server", "server.port", fmt.Sprintf("invalid port %q", d.cfg.Server.Port))
	}
	if d.cfg.Server.WriteTimeout > 0 && d.cfg.Queue.EnqueueTimeout >= d.cfg.Server.WriteTimeout {
		d.addWarning(r, "server", "queue.enqueue_timeout",
			fmt.Sprintf("enqueue_timeout %s is not shorter than write_timeout %s; store timeouts will surface as dropped connections",
				d.cfg.Queue.EnqueueTimeout, d.cfg.Server.WriteTimeout))
	}
}

// validateWebhook checks the provider-facing endpoint settings.
func (d *Doctor) validateWebhook(r *Result) {
	wc := d.cfg.Webhook
	if wc.VerifyToken == "" {
		d.addError(r, "webhook", "webhook.verify_token", "verify token is required (TOKEN)")
	}
	if wc.AppSecret == "" {
		d.addError(r, "webhook", "webhook.app_secret", "app secret is required (APP_SECRET)")
	}
	if !strings.HasPrefix(wc.Path, "/") {
		d.addError(r, "webhook", "webhook.path", fmt.Sprintf("path %q must start with /", wc.Path))
	}
	if _, err := webhook.LookupAlgorithm(wc.SignatureAlgorithm); err != nil {
		d.addError(r, "webhook", "webhook.signature_algorithm", err.Error())
		return
	}
	if _, err := webhook.FromGlobalConfig(d.cfg); err != nil {
		d.addError(r, "webhook", "webhook.max_body_size", err.Error())
	}
}

// validateQueue checks the queue store address and key.
func (d *Doctor) validateQueue(r *Result) {
	if d.cfg.Queue.Key == "" {
		d.addError(r, "queue", "queue.key", "queue key is required (QUEUE_KEY)")
	}
	if d.cfg.Queue.URL == "" {
		d.addError(r, "queue", "queue.url", "queue url is required (REDIS_URL)")
		return
	}
	backend, _, err := storage.ParseAddress(d.cfg.Queue.URL)
	if err != nil {
		d.addError(r, "queue", "queue.url", err.Error())
		return
	}
	if d.cfg.Queue.Key != "" {
		if err := storage.CheckKey(backend, d.cfg.Queue.Key); err != nil {
			d.addError(r, "queue", "queue.key", err.Error())
		}
	}
}

func (d *Doctor) warnWeakSecrets(r *Result) {
	wc := d.cfg.Webhook
	if wc.AppSecret != "" && len(wc.AppSecret) < minSecretLength {
		d.addWarning(r, "security", "webhook.app_secret",
			fmt.Sprintf("app secret is shorter than %d characters", minSecretLength))
	}
	if wc.AppSecret != "" && wc.AppSecret == wc.VerifyToken {
		d.addWarning(r, "security", "webhook.verify_token",
			"verify token equals the app secret; the token is sent in clear in handshake URLs")
	}
}

// warnUnresolvedEnvVars warns about ${VAR} references that survived loading.
func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	fields := []struct{ name, value string }{
		{"webhook.verify_token", d.cfg.Webhook.VerifyToken},
		{"webhook.app_secret", d.cfg.Webhook.AppSecret},
		{"queue.url", d.cfg.Queue.URL},
		{"queue.key", d.cfg.Queue.Key},
	}
	for _, f := range fields {
		for _, m := range unresolvedRe.FindAllStringSubmatch(f.value, -1) {
			d.addWarning(r, "env_vars", f.name, fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

func (d *Doctor) warnDeprecatedAlgorithm(r *Result) {
	alg := strings.ToLower(d.cfg.Webhook.SignatureAlgorithm)
	if alg == "" || alg == webhook.SHA1.Name {
		d.addWarning(r, "deprecated", "webhook.signature_algorithm",
			"sha1 signatures are legacy; use sha256 (X-Hub-Signature-256) if the provider sends it")
	}
}

func (d *Doctor) warnPayloadLogging(r *Result) {
	if strings.EqualFold(d.cfg.Service.LogLevel, "debug") {
		d.addWarning(r, "logging", "service.log_level",
			"debug level logs full webhook payloads, which may contain personal data")
	}
}

// checkStore pings the queue store when one was supplied.
func (d *Doctor) checkStore(ctx context.Context, r *Result) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.store.Ping(ctx); err != nil {
		d.addError(r, "queue", "queue.url",
			fmt.Sprintf("queue store unreachable at %s: %v", config.RedactURL(d.cfg.Queue.URL), err))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
