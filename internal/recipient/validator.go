// Package recipient decides whether a row's email address is worth sending to.
//
// Validation is a shape check followed by a lookup of the domain's MX records.
// SMTP probing is not attempted: large providers answer probes with
// misleading rejections.
package recipient

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"notionmail/internal/types"
)

// ReasonInvalidFormat is reported for addresses that are not shaped like
// local@domain.tld.
const ReasonInvalidFormat = "Invalid email format"

// DefaultCacheTTL bounds how long a domain's MX verdict is reused.
const DefaultCacheTTL = 15 * time.Minute

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MXResolver looks up mail exchangers. *net.Resolver satisfies it.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Result is the verdict for one address. Reason is empty when Valid.
type Result struct {
	Valid  bool
	Reason string
}

// Config holds the dependencies of a Validator.
type Config struct {
	Resolver MXResolver    // defaults to net.DefaultResolver
	CacheTTL time.Duration // defaults to DefaultCacheTTL
	Clock    types.Clock
	Logger   *slog.Logger
}

type cachedVerdict struct {
	result  Result
	expires time.Time
}

// Validator checks addresses. It is not safe for concurrent use; the
// pipeline processes rows one at a time.
type Validator struct {
	resolver MXResolver
	ttl      time.Duration
	clock    types.Clock
	logger   *slog.Logger
	domains  map[string]cachedVerdict
}

// NewValidator creates a Validator.
func NewValidator(cfg Config) *Validator {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		resolver: resolver,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
		domains:  make(map[string]cachedVerdict),
	}
}

// Validate checks address. Resolver failures produce an invalid Result, never
// an error. Only definitive answers are cached: mail servers found, no such
// domain, no MX records or a null MX. A transient resolver failure fails the
// address but the domain is looked up again next time.
func (v *Validator) Validate(ctx context.Context, address string) Result {
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		return Result{Reason: ReasonInvalidFormat}
	}

	domain := strings.ToLower(address[strings.LastIndex(address, "@")+1:])

	now := v.clock.Now()
	if c, ok := v.domains[domain]; ok && now.Before(c.expires) {
		return c.result
	}

	result, definitive := v.lookup(ctx, domain)
	if definitive {
		v.domains[domain] = cachedVerdict{result: result, expires: now.Add(v.ttl)}
	}
	return result
}

// lookup resolves domain's MX records. definitive is false when the resolver
// failed without a clear answer.
func (v *Validator) lookup(ctx context.Context, domain string) (result Result, definitive bool) {
	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		notFound := errors.As(err, &dnsErr) && dnsErr.IsNotFound
		v.logger.DebugContext(ctx, "mx lookup failed",
			"domain", domain,
			"not_found", notFound,
			"error", err,
		)
		return noMailServer(domain), notFound
	}
	for _, mx := range records {
		// A null MX (RFC 7505) advertises that the domain accepts no mail.
		if mx != nil && mx.Host != "" && mx.Host != "." {
			return Result{Valid: true}, true
		}
	}
	return noMailServer(domain), true
}

func noMailServer(domain string) Result {
	return Result{Reason: "No mail server found for " + domain}
}
