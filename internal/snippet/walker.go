package snippet

import (
	"fmt"
	"log"

	"github.com/banshee-data/scene.report/internal/sim"
)

// WalkerHandle pairs a spawned pedestrian with its AI controller.
type WalkerHandle struct {
	Walker     *sim.Actor
	Controller *sim.Actor
}

// TrySpawnWalker attempts to place one pedestrian and attach its
// controller. A blocked spawn point returns (nil, nil).
func TrySpawnWalker(s Simulator, blueprint string, at sim.Transform) (*WalkerHandle, error) {
	walker, err := s.TrySpawnActor(blueprint, at)
	if err != nil {
		return nil, fmt.Errorf("spawn walker %s: %w", blueprint, err)
	}
	if walker == nil {
		return nil, nil
	}
	controller, err := s.SpawnWalkerController(walker.ID)
	if err != nil {
		// An unreturned walker is invisible to cleanup. Take it down here.
		if derr := s.DestroyActor(walker.ID); derr != nil {
			log.Printf("destroy walker %d after failed controller spawn: %v", walker.ID, derr)
		}
		return nil, fmt.Errorf("spawn controller on %d: %w", walker.ID, err)
	}
	return &WalkerHandle{Walker: walker, Controller: controller}, nil
}

// StartController begins autonomous navigation toward a fresh random
// destination.
func (h *WalkerHandle) StartController(s Simulator) error {
	if err := s.StartWalkerController(h.Controller.ID); err != nil {
		return fmt.Errorf("start controller %d: %w", h.Controller.ID, err)
	}
	dest, err := s.RandomNavigationPoint()
	if err != nil {
		return fmt.Errorf("pick destination for %d: %w", h.Controller.ID, err)
	}
	if err := s.WalkerGoTo(h.Controller.ID, dest); err != nil {
		return fmt.Errorf("route controller %d: %w", h.Controller.ID, err)
	}
	return nil
}

// DestroyController stops and removes the AI controller. Controllers
// must go before the walkers they steer.
func (h *WalkerHandle) DestroyController(s Simulator) error {
	if h.Controller == nil {
		return nil
	}
	// Best effort: a controller that never started still has to go.
	_ = s.StopWalkerController(h.Controller.ID)
	err := s.DestroyActor(h.Controller.ID)
	h.Controller = nil
	return err
}

// DestroyBody removes the pedestrian itself.
func (h *WalkerHandle) DestroyBody(s Simulator) error {
	if h.Walker == nil {
		return nil
	}
	err := s.DestroyActor(h.Walker.ID)
	h.Walker = nil
	return err
}
