package ranking

// FromLimits overlays the configured bounds and domain lists on the
// defaults.
func FromLimits(limit, perDomainCap int, allow, deny []string) Options {
	opts := DefaultOptions()
	if limit > 0 {
		opts.Limit = limit
	}
	if perDomainCap > 0 {
		opts.PerDomainCap = perDomainCap
	}
	opts.AllowDomains = allow
	opts.DenyDomains = deny
	return opts
}
