package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kbukum/medscribe/component"
)

// RouteInfo is one registered HTTP route.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// Summary prints what the process started with.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	routes          []RouteInfo
	out             io.Writer
}

// NewSummary creates a summary that writes to stdout.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{
		serviceName: serviceName,
		version:     version,
		out:         os.Stdout,
	}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackRoute records an HTTP route.
func (s *Summary) TrackRoute(method, path, handler string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path, Handler: handler})
}

// Routes returns the tracked routes.
func (s *Summary) Routes() []RouteInfo {
	return s.routes
}

// Display prints the header, every component with its live health, and the
// tracked routes.
func (s *Summary) Display(ctx context.Context, registry *component.Registry) {
	w := s.out
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs\n", s.serviceName, s.version, s.startupDuration.Seconds())

	var results []component.Health
	if registry != nil {
		results = registry.HealthAll(ctx)
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "\n📦 Components\n   └── No components registered\n")
	} else {
		fmt.Fprintf(w, "\n📦 Components\n")
		healthy := 0
		for i, h := range results {
			line := h.Name
			if d, ok := registry.Get(h.Name).(component.Describable); ok {
				desc := d.Describe()
				line = fmt.Sprintf("%s [%s] %s", h.Name, desc.Type, desc.Details)
			}
			if h.Message != "" {
				line += " - " + h.Message
			}
			fmt.Fprintf(w, "   %s %s %s\n", treePrefix(i, len(results)), healthIcon(h.Status), strings.TrimSpace(line))
			if h.Status == component.StatusHealthy {
				healthy++
			}
		}
		if healthy == len(results) {
			fmt.Fprintf(w, "\n✅ All components healthy (%d/%d)\n", healthy, len(results))
		} else {
			fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d healthy)\n", healthy, len(results))
		}
	}

	if len(s.routes) > 0 {
		fmt.Fprintf(w, "\n🌐 Routes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", treePrefix(i, len(s.routes)), r.Method, r.Path, r.Handler)
		}
	}
	fmt.Fprintln(w)
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
