// Package snippet implements the synchronized recording core: it
// populates a scene with vehicles and pedestrians, drives the simulator
// tick by tick, collects exactly one lidar sample per vehicle per tick
// and commits the assembled frames to a dataset store.
package snippet

import (
	"fmt"
	"time"
)

// Defaults applied by Config.Normalize.
const (
	DefaultPointsPerCloud = 50000
	DefaultTickRate       = 10.0
	DefaultChannels       = 64
	DefaultRange          = 100.0
	DefaultLowerFOV       = -25.0
	DefaultSampleTimeout  = 5 * time.Second
	DefaultSpawnRetryCap  = 10000
	DefaultWalkerRetryCap = 1000

	// DefaultWaypointSpacing is the road-network sampling distance for
	// spawn candidates, in meters.
	DefaultWaypointSpacing = 5.0

	// groundClearance lifts vehicle spawn transforms off the road
	// surface to avoid a guaranteed collision with the ground mesh.
	groundClearance = 0.3
)

// Config holds the recording parameters for one run.
type Config struct {
	Map string

	// Lidar sensor parameters.
	Channels       int
	Range          float64 // maximum range in meters
	LowerFOV       float64 // lower vertical field of view, degrees (negative)
	PointsPerCloud int     // cap on points per revolution; storage row length

	TickRate float64 // fixed simulation steps per second

	Vehicles    int
	Pedestrians int
	Autopilot   bool

	Frames int // frames to record
	Burn   int // initial ticks to run and discard
	Seed   int64

	// SampleTimeout bounds the wall-clock wait for each vehicle's sample
	// within one tick.
	SampleTimeout time.Duration

	// MaxConsecutiveMisses aborts the run after that many consecutive
	// discarded frames. Zero retries forever, matching the upstream
	// behaviour.
	MaxConsecutiveMisses int

	// SpawnRetryCap bounds total vehicle placement attempts. Collisions
	// are common and harmless, so the cap is generous; exceeding it
	// means the filtered spawn radius cannot hold the requested count.
	SpawnRetryCap int

	// WalkerRetryCap bounds pedestrian placement attempts before the
	// run is treated as a fatal configuration error.
	WalkerRetryCap int

	WaypointSpacing float64
}

// Normalize fills unset fields with defaults, mirroring how the sensor
// pipeline constructors default their configs.
func (c *Config) Normalize() {
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.Range == 0 {
		c.Range = DefaultRange
	}
	if c.LowerFOV == 0 {
		c.LowerFOV = DefaultLowerFOV
	}
	if c.PointsPerCloud == 0 {
		c.PointsPerCloud = DefaultPointsPerCloud
	}
	if c.TickRate == 0 {
		c.TickRate = DefaultTickRate
	}
	if c.SampleTimeout == 0 {
		c.SampleTimeout = DefaultSampleTimeout
	}
	if c.SpawnRetryCap == 0 {
		c.SpawnRetryCap = DefaultSpawnRetryCap
	}
	if c.WalkerRetryCap == 0 {
		c.WalkerRetryCap = DefaultWalkerRetryCap
	}
	if c.WaypointSpacing == 0 {
		c.WaypointSpacing = DefaultWaypointSpacing
	}
}

// Validate rejects configurations the loop cannot honour.
func (c *Config) Validate() error {
	if c.Frames < 0 || c.Burn < 0 {
		return fmt.Errorf("frames (%d) and burn (%d) must be non-negative", c.Frames, c.Burn)
	}
	if c.Vehicles < 0 || c.Pedestrians < 0 {
		return fmt.Errorf("vehicle (%d) and pedestrian (%d) counts must be non-negative", c.Vehicles, c.Pedestrians)
	}
	if c.PointsPerCloud <= 0 {
		return fmt.Errorf("points-per-cloud must be positive, got %d", c.PointsPerCloud)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %.2f", c.TickRate)
	}
	if c.LowerFOV >= 0 {
		return fmt.Errorf("lower FOV must be negative degrees, got %.2f", c.LowerFOV)
	}
	return nil
}
