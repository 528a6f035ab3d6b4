package app

import (
	"context"

	"github.com/mrz1836/hwclaim/internal/endpoint"
	"github.com/mrz1836/hwclaim/internal/session"
)

// Connect makes sure an explorer endpoint is active. An endpoint the user
// pinned is used as is; otherwise every endpoint is probed and the fastest
// healthy one wins. An endpoint that is already active is kept.
func (s *Service) Connect(ctx context.Context, state *session.State) (*session.State, endpoint.Endpoint, error) {
	if ep, err := s.cfg.Explorers.Active(); err == nil {
		return withEndpoint(state, ep, state.ExplorerPinned), ep, nil
	}

	var (
		ep  endpoint.Endpoint
		err error
	)
	if state.ExplorerPinned && state.ExplorerEndpoint != "" {
		ep, err = s.cfg.Explorers.Use(ctx, state.ExplorerEndpoint)
	} else {
		ep, err = s.cfg.Explorers.Probe(ctx)
	}
	if err != nil {
		return state, endpoint.Endpoint{}, err
	}
	return withEndpoint(state, ep, state.ExplorerPinned), ep, nil
}

// UseEndpoint switches to the named endpoint and pins it for later runs.
func (s *Service) UseEndpoint(ctx context.Context, state *session.State, name string) (*session.State, endpoint.Endpoint, error) {
	ep, err := s.cfg.Explorers.Use(ctx, name)
	if err != nil {
		return state, endpoint.Endpoint{}, err
	}
	return withEndpoint(state, ep, true), ep, nil
}

// ProbeEndpoints re-probes every endpoint and unpins the choice.
func (s *Service) ProbeEndpoints(ctx context.Context, state *session.State) (*session.State, endpoint.Endpoint, error) {
	ep, err := s.cfg.Explorers.Probe(ctx)
	if err != nil {
		return state, endpoint.Endpoint{}, err
	}
	return withEndpoint(state, ep, false), ep, nil
}

// Endpoints lists the configured endpoints.
func (s *Service) Endpoints() []endpoint.Endpoint {
	return s.cfg.Explorers.Endpoints()
}

func withEndpoint(state *session.State, ep endpoint.Endpoint, pinned bool) *session.State {
	next := state.Clone()
	next.ExplorerEndpoint = ep.Name
	next.ExplorerPinned = pinned
	return next
}
