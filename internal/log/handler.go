package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// MaxTextExcerpt is the number of runes of submitted page text kept in logs.
const MaxTextExcerpt = 48

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"api_key":             true,
	"apikey":              true,
	"api-key":             true,
	"password":            true,
	"secret":              true,
	"token":               true,
	"access_token":        true,
	"session":             true,
	"session_id":          true,
	"credentials":         true,
}

// textKeys carry user page text. Their values are truncated, not masked,
// so a log line still shows which selection was scored.
var textKeys = map[string]bool{
	"text":      true,
	"text_str":  true,
	"selection": true,
}

// sensitiveQueryParams are URL query parameters that are masked in place.
// CDNs commonly sign image URLs with one of these.
var sensitiveQueryParams = []string{
	"token", "access_token", "api_key", "apikey", "key", "sig", "signature",
	"x-amz-signature", "x-amz-credential", "x-goog-signature", "auth",
}

// sensitivePatterns match values that are secret regardless of key name.
var sensitivePatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	// Bearer and basic credentials
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// OpenAI and HuggingFace style API keys
	regexp.MustCompile(`^(sk|hf)[-_][A-Za-z0-9_-]{16,}$`),
}

// SecureHandler wraps an slog.Handler and sanitizes every attribute before
// the wrapped handler sees it.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it to the underlying handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given (sanitized) attributes added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(out)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	key := strings.ToLower(a.Key)
	if sensitiveKeys[key] || containsSensitiveKeyword(key) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() != slog.KindString {
		return a
	}

	val := a.Value.String()
	if textKeys[key] {
		return slog.String(a.Key, Excerpt(val))
	}
	if isSensitiveValue(val) {
		return slog.String(a.Key, MaskValue)
	}
	if strings.Contains(val, "://") {
		return slog.String(a.Key, RedactURL(val))
	}
	return a
}

// containsSensitiveKeyword reports whether key embeds a secret-like word.
// The bare word "key" is excluded because "dedup_key" is logged routinely.
func containsSensitiveKeyword(key string) bool {
	for _, kw := range []string{"password", "secret", "token", "credential", "apikey", "api_key"} {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactURL masks user info and signed query parameters in raw.
// Values that do not parse as absolute URLs are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Scheme == "data" {
		return raw
	}

	changed := false
	if u.User != nil {
		u.User = url.User(MaskValue)
		changed = true
	}

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			lower := strings.ToLower(name)
			for _, p := range sensitiveQueryParams {
				if lower == p {
					q.Set(name, MaskValue)
					changed = true
					break
				}
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	if !changed {
		return raw
	}
	return u.String()
}

// Excerpt shortens page text to MaxTextExcerpt runes.
func Excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxTextExcerpt {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxTextExcerpt]) + "…"
}

// Options configures New.
type Options struct {
	// Verbose lowers the level from Warn to Debug.
	Verbose bool
	// JSON selects the JSON handler instead of text.
	JSON bool
}

// New creates a sanitizing slog.Logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.JSON {
		return NewSecureJSONLogger(w, opts.Verbose)
	}
	return NewSecureLogger(w, opts.Verbose)
}

// NewSecureLogger creates a text slog.Logger with secure handling.
// verbose sets the level to Debug; otherwise Warn.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a JSON slog.Logger with secure handling.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

// Discard returns a logger that drops every record. Useful as a default
// for components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
