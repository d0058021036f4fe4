package config

import (
	"sort"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/statboard"
)

// BuildSources converts parsed configuration into SDK Source objects.
//
// Topology sources come first, in preset order. Explicit sources replace a
// topology source with the same slot, or are appended otherwise. The returned
// update URL is the configured one, or the topology's when none is set.
func BuildSources(cfg *Config) ([]statboard.Source, string, error) {
	var (
		sources   []statboard.Source
		updateURL string
	)

	if cfg.Topology != "" {
		var opts []statboard.SourceOption
		if cfg.Timeout != 0 {
			opts = append(opts, statboard.WithTimeout(cfg.Timeout.Duration()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, statboard.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
		}

		srcs, u, err := statboard.Topology(cfg.Topology, cfg.BaseURL, opts...)
		if err != nil {
			return nil, "", err
		}
		sources = srcs
		updateURL = u
	}

	for _, sc := range cfg.Sources {
		src, err := buildSource(sc)
		if err != nil {
			return nil, "", err
		}
		replaced := false
		for i := range sources {
			if sources[i].Slot() == src.Slot() {
				sources[i] = src
				replaced = true
				break
			}
		}
		if !replaced {
			sources = append(sources, src)
		}
	}

	if cfg.UpdateURL != "" {
		updateURL = cfg.UpdateURL
	}
	return sources, updateURL, nil
}

// BuildOptions converts parsed configuration into the options for
// [statboard.New]. Callers append their own options, such as a logger.
func BuildOptions(cfg *Config) ([]statboard.Option, error) {
	sources, updateURL, err := BuildSources(cfg)
	if err != nil {
		return nil, err
	}

	opts := []statboard.Option{
		statboard.WithSources(sources...),
		statboard.WithPort(cfg.Port),
		statboard.WithPollingInterval(cfg.PollInterval.Duration()),
	}
	if cfg.Title != "" {
		opts = append(opts, statboard.WithTitle(cfg.Title))
	}
	if cfg.NoticeTTL != 0 {
		opts = append(opts, statboard.WithNoticeTTL(cfg.NoticeTTL.Duration()))
	}
	if cfg.IndexRange > 0 {
		opts = append(opts, statboard.WithIndexRange(cfg.IndexRange))
	}
	if updateURL != "" {
		opts = append(opts, statboard.WithUpdateURL(updateURL))
	}
	if r := cfg.UpdateRate; r != nil {
		opts = append(opts, statboard.WithUpdateRateLimit(rate.Limit(r.PerSecond), r.Burst))
	}
	return opts, nil
}

// buildSource converts a single SourceConfig to an SDK Source.
func buildSource(sc SourceConfig) (statboard.Source, error) {
	var opts []statboard.SourceOption

	if sc.Method != "" {
		opts = append(opts, statboard.WithMethod(sc.Method))
	}

	if sc.Timeout != 0 {
		opts = append(opts, statboard.WithTimeout(sc.Timeout.Duration()))
	}

	if len(sc.Headers) > 0 {
		opts = append(opts, statboard.WithHeaders(mapToKeyValuePairs(sc.Headers)...))
	}

	return statboard.NewSource(sc.Slot, sc.URL, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
