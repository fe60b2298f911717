package sandbox

import (
	"context"
	"fmt"

	"github.com/shellbot/shellbot/pkg/types"
)

// Service is the operation set shared by the chat bot and the HTTP API.
type Service struct {
	mgr  *Manager
	exec *Executor
}

// NewService combines a manager and an executor.
func NewService(mgr *Manager, exec *Executor) *Service {
	return &Service{mgr: mgr, exec: exec}
}

// Term runs a shell command in the sandbox.
func (s *Service) Term(ctx context.Context, command string) (*types.ExecutionResult, error) {
	return s.exec.Run(ctx, command)
}

// Distros lists the registry with the active distro marked.
func (s *Service) Distros() []types.DistroListing {
	return s.mgr.Registry().Listings()
}

// Distro switches the sandbox to name.
func (s *Service) Distro(ctx context.Context, name string) (*types.DistroSwitchResponse, error) {
	res, err := s.mgr.SwitchDistro(ctx, name)
	if err != nil {
		return nil, err
	}

	resp := &types.DistroSwitchResponse{
		Previous: res.Previous.Name,
		Current:  res.Current.Name,
		Changed:  res.Changed,
		Repaired: res.Readiness.Repaired,
		Status:   s.mgr.Status(),
	}
	if res.Changed {
		resp.Message = fmt.Sprintf("Sandbox switched to %s (%s).", res.Current.Name, res.Current.Image)
	} else {
		resp.Message = fmt.Sprintf("Sandbox is already running %s.", res.Current.Name)
	}
	return resp, nil
}

// Complete suggests distro names containing prefix.
func (s *Service) Complete(prefix string) []string {
	return s.mgr.Registry().Complete(prefix)
}

// Status returns the current sandbox snapshot.
func (s *Service) Status() types.SandboxStatus {
	return s.mgr.Status()
}

// EnsureReady prepares the sandbox ahead of the first command.
func (s *Service) EnsureReady(ctx context.Context) (Readiness, error) {
	return s.mgr.EnsureReady(ctx)
}
