package server

import (
	"context"
	"fmt"

	"github.com/kbukum/medscribe/component"
)

var (
	_ component.Component   = (*Server)(nil)
	_ component.Describable = (*Server)(nil)
)

// Health reports healthy once the listener is bound.
func (s *Server) Health(ctx context.Context) component.Health {
	if s.listener == nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not listening"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (s *Server) Describe() component.Description {
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: fmt.Sprintf("%s routes=%d", s.config.Addr(), len(s.engine.Routes())),
	}
}
