package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Limiter classifies requests into categories and evaluates them against a
// QuotaStore.
//
// The Limiter never resolves caller privilege itself. Callers that need the
// privileged category resolve it first and pass the resulting Category to
// Check.
type Limiter struct {
	store      QuotaStore
	categories map[string]Category
	rules      []compiledRule
	metrics    Metrics
}

// NewLimiter builds a limiter over an ordered rule table.
//
// Every category must validate and every non-exempt rule must reference a
// configured category.
func NewLimiter(store QuotaStore, categories []Category, rules []Rule, metrics Metrics) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	byName := make(map[string]Category, len(categories))
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		byName[c.Name] = c
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Exempt {
			if _, ok := byName[r.Category]; !ok {
				return nil, fmt.Errorf("rule %q: %w %q", r.Name, ErrUnknownCategory, r.Category)
			}
			if r.PrivilegedCategory != "" {
				if _, ok := byName[r.PrivilegedCategory]; !ok {
					return nil, fmt.Errorf("rule %q: %w %q", r.Name, ErrUnknownCategory, r.PrivilegedCategory)
				}
			}
		}
		cr, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cr)
	}

	return &Limiter{
		store:      store,
		categories: byName,
		rules:      compiled,
		metrics:    metrics,
	}, nil
}

// Classify returns the first rule matching the request. path is
// canonicalized first, so a trailing slash or dot segment cannot move a
// request to a looser rule.
//
// A request no rule matches yields ErrUnclassified; callers must fail
// closed on it.
func (l *Limiter) Classify(path, method string) (Classification, error) {
	path = CanonicalPath(path)
	method = strings.ToUpper(method)
	for _, cr := range l.rules {
		if !cr.matches(path, method) {
			continue
		}

		c := Classification{Rule: cr.rule.Name}
		if cr.rule.Exempt {
			return c, nil
		}

		category := l.categories[cr.rule.Category]
		c.Category = &category
		if cr.rule.PrivilegedCategory != "" {
			privileged := l.categories[cr.rule.PrivilegedCategory]
			c.Privileged = &privileged
		}
		return c, nil
	}

	return Classification{}, fmt.Errorf("%w: %s %s", ErrUnclassified, method, path)
}

// Category looks up a configured category by name.
func (l *Limiter) Category(name string) (Category, error) {
	c, ok := l.categories[name]
	if !ok {
		return Category{}, fmt.Errorf("%w %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// Categories returns all configured categories sorted by name.
func (l *Limiter) Categories() []Category {
	out := make([]Category, 0, len(l.categories))
	for _, c := range l.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Check records a request for client in category and returns the decision.
func (l *Limiter) Check(ctx context.Context, client string, category Category) (*Decision, error) {
	key := l.key(client, category)

	start := time.Now()
	d, err := l.store.RecordAndEvaluate(ctx, key, category)
	l.metrics.RecordCheckDuration(category.Name, time.Since(start))
	if err != nil {
		l.metrics.RecordStoreError("record")
		slog.Error("rate limit store evaluation failed",
			slog.String("category", category.Name),
			slog.Any("error", err))
		return nil, err
	}

	l.metrics.RecordDecision(category.Name, d.Admitted)
	if !d.Admitted {
		slog.Debug("rate limit exceeded",
			slog.String("client_id", key.Client),
			slog.String("category", category.Name),
			slog.Int64("retry_after", d.RetryAfterSeconds()))
	}
	return d, nil
}

// StatusOnly evaluates client in category without consuming quota.
func (l *Limiter) StatusOnly(ctx context.Context, client string, category Category) (*Decision, error) {
	d, err := l.store.Peek(ctx, l.key(client, category), category)
	if err != nil {
		l.metrics.RecordStoreError("peek")
		return nil, err
	}
	return d, nil
}

// Clear removes the counter for client in the named category.
func (l *Limiter) Clear(ctx context.Context, client, categoryName string) error {
	category, err := l.Category(categoryName)
	if err != nil {
		return err
	}
	if err := l.store.Clear(ctx, l.key(client, category)); err != nil {
		l.metrics.RecordStoreError("clear")
		return err
	}
	slog.Info("rate limit counter cleared",
		slog.String("client_id", client),
		slog.String("category", categoryName))
	return nil
}

func (l *Limiter) key(client string, category Category) Key {
	if strings.TrimSpace(client) == "" {
		client = UnknownClient
	}
	return Key{Client: client, Category: category.Name}
}
