// Package health checks the state a naming service depends on: the store
// backend, the history graph and the evaluated project.
//
// Every check returns a Status. Combine folds several into one, worst first:
//
//	status := health.Combine(
//	    health.StoreCheck(ctx, st, "bracket"),
//	    health.HistoryCheck(g, 0.5),
//	    health.ProjectCheck(p),
//	)
//	if status.IsUnhealthy() {
//	    log.Fatal(status.Message)
//	}
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/project"
	"github.com/cadseer/naming/store"
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the outcome of a check.
type Status struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == StatusHealthy }
func (s Status) IsDegraded() bool  { return s.Status == StatusDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

func (s Status) String() string {
	return s.Status + ": " + s.Message
}

// Healthy returns a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded returns a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy returns an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// StoreCheck lists the references of project. A missing project is not an
// error for the store.
func StoreCheck(ctx context.Context, s store.Store, project string) Status {
	if s == nil {
		return Unhealthy("no store configured", nil)
	}
	names, err := s.ListReferences(ctx, project)
	if err != nil {
		return Unhealthy("store unreachable", map[string]any{
			"project": project,
			"error":   err.Error(),
		})
	}
	return Healthy(fmt.Sprintf("store answered with %d reference(s) for %s", len(names), project))
}

// NetworkCheck dials address over TCP. Without a deadline on ctx it gives up
// after five seconds.
func NetworkCheck(ctx context.Context, address string) Status {
	if address == "" {
		return Unhealthy("address cannot be empty", nil)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(fmt.Sprintf("failed to connect to %s", address), map[string]any{
			"address": address,
			"error":   err.Error(),
		})
	}
	conn.Close()
	return Healthy(fmt.Sprintf("connected to %s", address))
}

// FileCheck reports whether path exists and is a directory, as a badger
// database path must be.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return Unhealthy(fmt.Sprintf("path %s does not exist", path), map[string]any{"path": path})
	case err != nil:
		return Unhealthy(fmt.Sprintf("failed to stat %s", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	case !info.IsDir():
		return Unhealthy(fmt.Sprintf("%s is not a directory", path), map[string]any{"path": path})
	}
	return Healthy(fmt.Sprintf("directory %s exists", path))
}

// HistoryCheck is degraded when more than maxDead of the graph's nodes are
// no longer live, which means the graph is due for compaction.
func HistoryCheck(g *history.Graph, maxDead float64) Status {
	if g == nil {
		return Unhealthy("no history graph", nil)
	}
	st := g.Stats()
	details := map[string]any{
		"features": st.Features,
		"nodes":    st.Nodes,
		"edges":    st.Edges,
		"live":     st.Live,
	}
	if st.Nodes == 0 {
		return Healthy("history is empty")
	}
	dead := float64(st.Nodes-st.Live) / float64(st.Nodes)
	if dead > maxDead {
		return Degraded(fmt.Sprintf("%.0f%% of history nodes are dead", dead*100), details)
	}
	return Healthy(fmt.Sprintf("history holds %d features, %d live nodes", st.Features, st.Live))
}

// ProjectCheck is unhealthy when a feature failed to evaluate and degraded
// when a result broke a naming invariant.
func ProjectCheck(p *project.Project) Status {
	if p == nil {
		return Unhealthy("no project", nil)
	}
	var failed, degraded []string
	features := p.Features()
	for _, f := range features {
		id := f.ID()
		if p.Err(id) != nil {
			failed = append(failed, id.Short())
			continue
		}
		if r, ok := p.Result(id); ok && r.Degraded {
			degraded = append(degraded, id.Short())
		}
	}
	switch {
	case len(failed) > 0:
		return Unhealthy(fmt.Sprintf("%d feature(s) failed", len(failed)), map[string]any{"failed": failed})
	case len(degraded) > 0:
		return Degraded(fmt.Sprintf("%d feature(s) degraded", len(degraded)), map[string]any{"degraded": degraded})
	}
	return Healthy(fmt.Sprintf("all %d feature(s) evaluated", len(features)))
}

// Combine folds checks into one status. Any unhealthy check makes the result
// unhealthy; otherwise any degraded check makes it degraded.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	healthy := 0
	for _, c := range checks {
		msg := c.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch c.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthy++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthy),
			"degraded":      len(degraded),
			"healthy":       healthy,
			"failed_checks": unhealthy,
		})
	}
	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthy,
			"degraded_checks": degraded,
		})
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
