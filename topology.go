package statboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/statboard/internal/display"
)

// ErrUnknownTopology is returned by [Topology] for an unrecognised preset name.
var ErrUnknownTopology = errors.New("unknown topology")

// Topology names accepted by [Topology].
const (
	TopologyPath = "path"
	TopologyPort = "port"
)

// PathTopology returns the default sources for a deployment where every
// service sits behind one reverse proxy at baseURL, e.g. "http://vm.example.com".
//
//	processing-stats  GET {base}/processing/stats
//	analyzer-stats    GET {base}/analyzer/stats
//	event-chat        GET {base}/analyzer/stream/chats?index=N
//	event-donation    GET {base}/analyzer/stream/donations?index=N
//	check             GET {base}/consistency_check/checks
//
// The matching manual update endpoint is [PathUpdateURL].
func PathTopology(baseURL string, opts ...SourceOption) ([]Source, error) {
	base := strings.TrimRight(baseURL, "/")
	return buildSources([][2]string{
		{display.SlotProcessingStats, base + "/processing/stats"},
		{display.SlotAnalyzerStats, base + "/analyzer/stats"},
		{display.SlotEventChat, base + "/analyzer/stream/chats?index={{.Index}}"},
		{display.SlotEventDonation, base + "/analyzer/stream/donations?index={{.Index}}"},
		{display.SlotCheck, base + "/consistency_check/checks"},
	}, opts)
}

// PathUpdateURL returns the manual update endpoint for a path topology.
func PathUpdateURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/consistency_check/update"
}

// PortTopology returns the default sources for a deployment where each
// service listens on its own port of host, e.g. "http://localhost".
//
//	processing-stats  GET {host}:8100/stats
//	analyzer-stats    GET {host}:8110/stats
//	event-chat        GET {host}:8110/stream/chats?index=N
//	event-donation    GET {host}:8110/stream/donations?index=N
//
// This layout has no consistency check and no manual update endpoint.
func PortTopology(host string, opts ...SourceOption) ([]Source, error) {
	h := strings.TrimRight(host, "/")
	return buildSources([][2]string{
		{display.SlotProcessingStats, h + ":8100/stats"},
		{display.SlotAnalyzerStats, h + ":8110/stats"},
		{display.SlotEventChat, h + ":8110/stream/chats?index={{.Index}}"},
		{display.SlotEventDonation, h + ":8110/stream/donations?index={{.Index}}"},
	}, opts)
}

// Topology returns the sources and update URL for a named preset.
// The update URL is empty for presets without one.
func Topology(name, base string, opts ...SourceOption) ([]Source, string, error) {
	switch name {
	case TopologyPath:
		srcs, err := PathTopology(base, opts...)
		return srcs, PathUpdateURL(base), err
	case TopologyPort:
		srcs, err := PortTopology(base, opts...)
		return srcs, "", err
	default:
		return nil, "", fmt.Errorf("%w %q (want %s or %s)", ErrUnknownTopology, name, TopologyPath, TopologyPort)
	}
}

func buildSources(pairs [][2]string, opts []SourceOption) ([]Source, error) {
	out := make([]Source, 0, len(pairs))
	for _, p := range pairs {
		src, err := NewSource(p[0], p[1], opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
