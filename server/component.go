package server

import (
	"context"
	"sort"

	"github.com/kbukum/whisper-subtitle/component"
)

var _ component.Component = (*Component)(nil)

// Component adapts Server to the component lifecycle.
type Component struct {
	server  *Server
	started bool
}

// NewComponent wraps s.
func NewComponent(s *Server) *Component { return &Component{server: s} }

// Name implements component.Component.
func (c *Component) Name() string { return "http-server" }

// Start implements component.Component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.server.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop implements component.Component.
func (c *Component) Stop(ctx context.Context) error {
	c.started = false
	return c.server.Stop(ctx)
}

// Health implements component.Component.
func (c *Component) Health(context.Context) component.Health {
	if !c.started {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not listening"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: c.server.Addr()}
}

// Route is one registered HTTP route.
type Route struct {
	Method string
	Path   string
}

// Routes lists registered routes by path, then method.
func (s *Server) Routes() []Route {
	info := s.engine.Routes()
	out := make([]Route, 0, len(info))
	for _, r := range info {
		out = append(out, Route{Method: r.Method, Path: r.Path})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
