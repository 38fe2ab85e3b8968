package snippet

import (
	"context"

	"github.com/banshee-data/scene.report/internal/sim"
	"github.com/banshee-data/scene.report/internal/snippet/store"
)

// Simulator is the slice of the bridge client the recording loop needs.
// sim.Client satisfies it; tests substitute an in-process fake.
type Simulator interface {
	Tick(ctx context.Context) (*sim.Snapshot, error)

	VehicleBlueprints() ([]sim.Blueprint, error)
	WalkerBlueprints() ([]sim.Blueprint, error)
	Waypoints(spacing float64) ([]sim.Transform, error)
	RandomNavigationPoint() (sim.Location, error)

	TrySpawnActor(blueprint string, at sim.Transform) (*sim.Actor, error)
	SpawnLidar(settings sim.LidarSettings, at sim.Transform, parent sim.ActorID) (*sim.Actor, error)
	SpawnWalkerController(parent sim.ActorID) (*sim.Actor, error)

	SetAutopilot(id sim.ActorID, enabled bool) error
	StartWalkerController(id sim.ActorID) error
	StopWalkerController(id sim.ActorID) error
	WalkerGoTo(id sim.ActorID, dest sim.Location) error

	DestroyActor(id sim.ActorID) error
	ListenLidar(id sim.ActorID, fn func(sim.LidarSample))
}

// FrameStore receives completed frames. store.Store satisfies it.
type FrameStore interface {
	WriteFrame(frameIdx int, rec *store.FrameRecord) error
}
