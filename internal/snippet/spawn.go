package snippet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/banshee-data/scene.report/internal/sim"
)

// ErrRetriesExhausted reports that actor placement hit its retry cap
// before reaching the requested population.
var ErrRetriesExhausted = errors.New("spawn retries exhausted")

// Population holds the actors of one run. The orchestrator owns these
// lists; nothing else mutates them.
type Population struct {
	Vehicles []*VehicleHandle
	Walkers  []*WalkerHandle

	// Anchor is the waypoint the scene is clustered around.
	Anchor sim.Transform
}

// Populate fills a scene: it picks a random anchor waypoint, spawns the
// requested vehicles (with roof lidars) at road waypoints within half
// the sensor range of the anchor, and scatters pedestrians on the
// navigation mesh inside the same radius. Placement collisions are
// retried at fresh locations up to the configured caps.
func Populate(ctx context.Context, s Simulator, cfg *Config, rng *rand.Rand) (*Population, error) {
	vehicleBPs, err := s.VehicleBlueprints()
	if err != nil {
		return nil, fmt.Errorf("list vehicle blueprints: %w", err)
	}
	vehicleBPs = FilterVehicleBlueprints(vehicleBPs)
	if len(vehicleBPs) == 0 {
		return nil, errors.New("no usable vehicle blueprints")
	}
	walkerBPs, err := s.WalkerBlueprints()
	if err != nil {
		return nil, fmt.Errorf("list walker blueprints: %w", err)
	}
	if cfg.Pedestrians > 0 && len(walkerBPs) == 0 {
		return nil, errors.New("no walker blueprints")
	}

	waypoints, err := s.Waypoints(cfg.WaypointSpacing)
	if err != nil {
		return nil, fmt.Errorf("list waypoints: %w", err)
	}
	if len(waypoints) == 0 {
		return nil, errors.New("map has no waypoints")
	}

	anchor := waypoints[rng.Intn(len(waypoints))]
	radius := cfg.Range / 2
	var nearby []sim.Transform
	for _, wp := range waypoints {
		if wp.Location.DistanceTo(anchor.Location) <= radius {
			nearby = append(nearby, wp)
		}
	}
	log.Printf("anchor at (%.1f, %.1f): %d of %d waypoints within %.1f m",
		anchor.Location.X, anchor.Location.Y, len(nearby), len(waypoints), radius)

	pop := &Population{Anchor: anchor}

	attempts := 0
	for len(pop.Vehicles) < cfg.Vehicles {
		if err := ctx.Err(); err != nil {
			return pop, err
		}
		if attempts >= cfg.SpawnRetryCap {
			return pop, fmt.Errorf("placed %d of %d vehicles after %d attempts: %w",
				len(pop.Vehicles), cfg.Vehicles, attempts, ErrRetriesExhausted)
		}
		attempts++

		bp := vehicleBPs[rng.Intn(len(vehicleBPs))]
		at := nearby[rng.Intn(len(nearby))]
		h, err := TrySpawnVehicle(s, cfg, bp.ID, at)
		if err != nil {
			return pop, err
		}
		if h == nil {
			continue
		}
		// Register before configuring, so a failure past this point still
		// reaches the handle during cleanup.
		pop.Vehicles = append(pop.Vehicles, h)
		if cfg.Autopilot {
			if err := s.SetAutopilot(h.Vehicle.ID, true); err != nil {
				return pop, fmt.Errorf("autopilot %d: %w", h.Vehicle.ID, err)
			}
		}
	}
	log.Printf("spawned %d vehicles in %d attempts", len(pop.Vehicles), attempts)

	attempts = 0
	for len(pop.Walkers) < cfg.Pedestrians {
		if err := ctx.Err(); err != nil {
			return pop, err
		}
		if attempts >= cfg.WalkerRetryCap {
			return pop, fmt.Errorf("placed %d of %d pedestrians after %d attempts: %w",
				len(pop.Walkers), cfg.Pedestrians, attempts, ErrRetriesExhausted)
		}
		attempts++

		loc, err := s.RandomNavigationPoint()
		if err != nil {
			return pop, fmt.Errorf("navigation point: %w", err)
		}
		if loc.DistanceTo(anchor.Location) > radius {
			continue
		}
		bp := walkerBPs[rng.Intn(len(walkerBPs))]
		h, err := TrySpawnWalker(s, bp.ID, sim.Transform{Location: loc})
		if err != nil {
			return pop, err
		}
		if h == nil {
			continue
		}
		pop.Walkers = append(pop.Walkers, h)
	}
	if cfg.Pedestrians > 0 {
		log.Printf("spawned %d pedestrians in %d attempts", len(pop.Walkers), attempts)
	}
	return pop, nil
}

// Cleanup destroys every actor in the population: sensors and
// controllers first, then the bodies they were attached to. Errors are
// logged and do not stop the sweep; the lists are emptied regardless.
func (p *Population) Cleanup(s Simulator) {
	for _, h := range p.Vehicles {
		if err := h.DestroySensor(s); err != nil {
			log.Printf("destroy lidar: %v", err)
		}
	}
	for _, h := range p.Walkers {
		if err := h.DestroyController(s); err != nil {
			log.Printf("destroy controller: %v", err)
		}
	}
	for _, h := range p.Vehicles {
		if err := h.DestroyBody(s); err != nil {
			log.Printf("destroy vehicle: %v", err)
		}
	}
	for _, h := range p.Walkers {
		if err := h.DestroyBody(s); err != nil {
			log.Printf("destroy walker: %v", err)
		}
	}
	p.Vehicles = nil
	p.Walkers = nil
}
