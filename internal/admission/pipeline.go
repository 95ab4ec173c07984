// Package admission runs every inbound request through the ordered
// admission stages: rate limit, CSRF, identity and role. The first stage
// that refuses a request ends evaluation with a typed Rejection; later
// stages never run.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"usic-gateway/internal/handler/http/respond"
	"usic-gateway/internal/identity"
	"usic-gateway/internal/observability/logging"
	"usic-gateway/internal/observability/tracing"
	"usic-gateway/internal/rolegate"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

// Verifier produces the principal behind a request.
type Verifier interface {
	VerifyRequest(r *http.Request) (*identity.Principal, error)
}

// PrivilegeChecker answers whether a principal holds the privileged role.
// Errors mean the answer is unknown.
type PrivilegeChecker interface {
	IsPrivileged(ctx context.Context, p *identity.Principal) (bool, error)
}

// CSRFChecker validates the double-submit token pair of a request.
type CSRFChecker interface {
	Check(r *http.Request) error
}

// ClientIdentifier derives the network identity used as the default
// rate-limit key.
type ClientIdentifier func(r *http.Request) string

// Options configures a Pipeline. Every collaborator is required.
type Options struct {
	Limiter  *ratelimit.Limiter
	CSRF     CSRFChecker
	Verifier Verifier
	Roles    PrivilegeChecker
	ClientID ClientIdentifier

	// Policies maps rule names to the stages they require. Rules without
	// an entry get the zero Policy: rate limit and CSRF only.
	Policies map[string]Policy
}

// Pipeline evaluates admission for requests. It is safe for concurrent use.
type Pipeline struct {
	limiter  *ratelimit.Limiter
	csrf     CSRFChecker
	verifier Verifier
	roles    PrivilegeChecker
	clientID ClientIdentifier
	policies map[string]Policy
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Limiter == nil:
		return nil, errors.New("admission: limiter is required")
	case opts.CSRF == nil:
		return nil, errors.New("admission: csrf checker is required")
	case opts.Verifier == nil:
		return nil, errors.New("admission: identity verifier is required")
	case opts.Roles == nil:
		return nil, errors.New("admission: privilege checker is required")
	case opts.ClientID == nil:
		return nil, errors.New("admission: client identifier is required")
	}

	policies := make(map[string]Policy, len(opts.Policies))
	for name, p := range opts.Policies {
		policies[name] = p
	}
	return &Pipeline{
		limiter:  opts.Limiter,
		csrf:     opts.CSRF,
		verifier: opts.Verifier,
		roles:    opts.Roles,
		clientID: opts.ClientID,
		policies: policies,
	}, nil
}

// Result describes one admission evaluation. Exactly one of Admitted() and
// Rejection != nil holds.
type Result struct {
	// Rule is the matched route rule, empty when classification failed.
	Rule string

	// Category is the applied rate-limit category, empty for exempt routes.
	Category string

	// Client is the rate-limit client identifier that was charged.
	Client string

	Principal  *identity.Principal
	Privileged bool

	// Decision is nil when the rate-limit stage did not run.
	Decision *ratelimit.Decision

	Rejection *Rejection
}

// Admitted reports whether the request may proceed to its handler.
func (r *Result) Admitted() bool { return r.Rejection == nil }

// collaborator outcomes, resolved at most once per request
type resolution struct {
	identityDone bool
	identityErr  error
	roleDone     bool
	roleErr      error
}

// Admit evaluates r and returns the outcome. It never writes a response.
func (p *Pipeline) Admit(r *http.Request) *Result {
	ctx, span := tracing.Tracer().Start(r.Context(), "admission")
	defer span.End()
	r = r.WithContext(ctx)

	start := time.Now()
	res := p.admit(r)
	recordAdmission(res, time.Since(start))

	span.SetAttributes(
		attribute.String("admission.rule", res.Rule),
		attribute.String("admission.category", res.Category),
		attribute.Bool("admission.admitted", res.Admitted()),
	)
	if rej := res.Rejection; rej != nil {
		span.SetAttributes(
			attribute.String("admission.stage", string(rej.Stage)),
			attribute.String("admission.rejection", rej.Kind.String()),
		)
		if rej.Kind.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, rej.Kind.String())
		}
		logRejection(ctx, r, res)
	} else {
		logging.FromContext(ctx).Debug("request admitted",
			slog.String("rule", res.Rule),
			slog.String("category", res.Category),
			slog.String("client_id", res.Client))
	}
	return res
}

func (p *Pipeline) admit(r *http.Request) *Result {
	res := &Result{}

	cls, err := p.limiter.Classify(r.URL.Path, r.Method)
	if err != nil {
		res.Rejection = reject(KindConfigurationError, StageClassify, err)
		recordStage(StageClassify, res.Rejection)
		return res
	}
	res.Rule = cls.Rule
	policy := p.policies[cls.Rule]
	var st resolution

	if !cls.Exempt() {
		// The key and the category may depend on who is calling.
		if policy.SubjectKey || cls.Privileged != nil {
			p.resolveIdentity(r, res, &st)
			if res.Principal != nil && cls.Privileged != nil {
				p.resolvePrivilege(r, res, &st)
			}
		}
		if rej := p.rateLimit(r, cls, policy, res, &st); rej != nil {
			res.Rejection = rej
			return res
		}
	}

	if csrf.RequiresToken(r.Method) && !policy.SkipCSRF {
		if err := p.csrf.Check(r); err != nil {
			res.Rejection = reject(csrfKind(err), StageCSRF, err)
			recordStage(StageCSRF, res.Rejection)
			return res
		}
		recordStage(StageCSRF, nil)
	}

	if policy.Identity || policy.Privileged {
		p.resolveIdentity(r, res, &st)
		if st.identityErr != nil {
			res.Rejection = reject(identityKind(st.identityErr), StageIdentity, st.identityErr)
			recordStage(StageIdentity, res.Rejection)
			return res
		}
		recordStage(StageIdentity, nil)
	}

	if policy.Privileged {
		p.resolvePrivilege(r, res, &st)
		switch {
		case st.roleErr != nil:
			res.Rejection = reject(roleKind(st.roleErr), StageRole, st.roleErr)
		case !res.Privileged:
			res.Rejection = reject(KindNotPrivileged, StageRole, rolegate.ErrNotPrivileged)
		}
		recordStage(StageRole, res.Rejection)
		if res.Rejection != nil {
			return res
		}
	}

	return res
}

func (p *Pipeline) rateLimit(r *http.Request, cls ratelimit.Classification, policy Policy, res *Result, st *resolution) *Rejection {
	ctx, span := tracing.Tracer().Start(r.Context(), "admission.rate_limit")
	defer span.End()

	client := p.clientID(r)
	if policy.SubjectKey && res.Principal != nil {
		client = ratelimit.SubjectClient(res.Principal.SubjectID)
	}
	res.Client = client

	// A failed privilege lookup leaves res.Privileged false, which selects
	// the stricter category.
	category := cls.Resolve(res.Privileged && st.roleErr == nil)
	res.Category = category.Name
	span.SetAttributes(attribute.String("ratelimit.category", category.Name))

	d, err := p.limiter.Check(ctx, client, *category)
	if err != nil {
		rej := reject(KindInternal, StageRateLimit, err)
		markSpan(span, rej)
		recordStage(StageRateLimit, rej)
		return rej
	}
	res.Decision = d
	span.SetAttributes(
		attribute.Bool("ratelimit.admitted", d.Admitted),
		attribute.Int("ratelimit.remaining", d.Remaining),
	)

	if !d.Admitted {
		rej := reject(KindRateLimitExceeded, StageRateLimit, nil)
		rej.Decision = d
		markSpan(span, rej)
		recordStage(StageRateLimit, rej)
		return rej
	}
	recordStage(StageRateLimit, nil)
	return nil
}

func (p *Pipeline) resolveIdentity(r *http.Request, res *Result, st *resolution) {
	if st.identityDone {
		return
	}
	st.identityDone = true

	ctx, span := tracing.Tracer().Start(r.Context(), "admission.identity")
	defer span.End()

	principal, err := p.verifier.VerifyRequest(r.WithContext(ctx))
	if err != nil {
		st.identityErr = err
		span.SetAttributes(attribute.String("identity.result", identity.KindOf(err).String()))
		if identity.KindOf(err) == identity.KindUnavailable {
			span.SetStatus(codes.Error, "identity provider unavailable")
		}
		return
	}
	res.Principal = principal
	span.SetAttributes(attribute.String("identity.result", "verified"))
}

func (p *Pipeline) resolvePrivilege(r *http.Request, res *Result, st *resolution) {
	if st.roleDone {
		return
	}
	st.roleDone = true

	ctx, span := tracing.Tracer().Start(r.Context(), "admission.role")
	defer span.End()

	privileged, err := p.roles.IsPrivileged(ctx, res.Principal)
	if err != nil {
		st.roleErr = err
		span.SetStatus(codes.Error, "role registry unavailable")
		logging.FromContext(ctx).Warn("privilege lookup failed, applying stricter limits",
			slog.String("subject", res.Principal.SubjectID),
			slog.Any("error", err))
		return
	}
	res.Privileged = privileged
	span.SetAttributes(attribute.Bool("role.privileged", privileged))
}

func markSpan(span trace.Span, rej *Rejection) {
	span.SetAttributes(attribute.String("admission.rejection", rej.Kind.String()))
	if rej.Kind.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, rej.Kind.String())
	}
}

func logRejection(ctx context.Context, r *http.Request, res *Result) {
	rej := res.Rejection
	level := slog.LevelWarn
	if rej.Kind.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("stage", string(rej.Stage)),
		slog.String("kind", rej.Kind.String()),
		slog.String("rule", res.Rule),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}
	if res.Client != "" {
		attrs = append(attrs, slog.String("client_id", res.Client))
	}
	if rej.Decision != nil {
		attrs = append(attrs, slog.Int64("retry_after", rej.Decision.RetryAfterSeconds()))
	}
	if rej.Err != nil {
		attrs = append(attrs, slog.String("error", respond.SanitizeError(rej.Err)))
	}
	logging.FromContext(ctx).LogAttrs(ctx, level, "request rejected", attrs...)
}
