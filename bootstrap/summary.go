package bootstrap

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/whisper-subtitle/component"
)

// RouteInfo is a route listed in the summary.
type RouteInfo struct {
	Method string
	Path   string
}

// Summary collects what the startup summary prints.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	routes          []RouteInfo
	notes           []string
}

// NewSummary creates a summary for a service.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the startup time.
func (s *Summary) SetStartupDuration(d time.Duration) { s.startupDuration = d }

// TrackRoute records an HTTP route.
func (s *Summary) TrackRoute(method, path string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path})
}

// Note adds a free-form line, e.g. "engine whispercpp: ready".
func (s *Summary) Note(format string, args ...any) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// Write prints the summary with the given component health.
func (s *Summary) Write(w io.Writer, health []component.Health) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s started in %.2fs\n", s.serviceName, s.version, s.startupDuration.Seconds())

	if len(health) > 0 {
		b.WriteString("\nComponents\n")
		healthy := 0
		for i, h := range health {
			fmt.Fprintf(&b, "   %s %s %s", treePrefix(i, len(health)), statusIcon(h.Status), h.Name)
			if h.Message != "" {
				fmt.Fprintf(&b, " (%s)", h.Message)
			}
			b.WriteByte('\n')
			if h.Status == component.StatusHealthy {
				healthy++
			}
		}
		fmt.Fprintf(&b, "   %d/%d healthy\n", healthy, len(health))
	}
	if len(s.notes) > 0 {
		b.WriteString("\nNotes\n")
		for i, n := range s.notes {
			fmt.Fprintf(&b, "   %s %s\n", treePrefix(i, len(s.notes)), n)
		}
	}
	if len(s.routes) > 0 {
		fmt.Fprintf(&b, "\nRoutes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(&b, "   %s %-6s %s\n", treePrefix(i, len(s.routes)), r.Method, r.Path)
		}
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(w, b.String())
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func statusIcon(s component.HealthStatus) string {
	switch s {
	case component.StatusHealthy:
		return "[ok]"
	case component.StatusDegraded:
		return "[degraded]"
	default:
		return "[down]"
	}
}
