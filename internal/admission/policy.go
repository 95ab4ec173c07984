package admission

import "usic-gateway/internal/config"

// Policy lists the stages a route requires beyond rate limiting.
type Policy struct {
	// SubjectKey charges the verified subject instead of the client
	// address. Without a verified principal the client address is used.
	SubjectKey bool

	Identity   bool
	Privileged bool

	// SkipCSRF turns off the CSRF stage for mutating methods.
	SkipCSRF bool
}

// PoliciesFromRoutes extracts the per-rule policies from the route table.
func PoliciesFromRoutes(routes []config.Route) map[string]Policy {
	out := make(map[string]Policy, len(routes))
	for _, r := range routes {
		out[r.Name] = Policy{
			SubjectKey: r.Key == config.KeySubject,
			Identity:   r.Identity,
			Privileged: r.Privileged,
			SkipCSRF:   r.SkipCSRF,
		}
	}
	return out
}
