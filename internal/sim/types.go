// Package sim is the client side of the simulator bridge. The control
// plane (world loading, actor spawning, ticking) speaks HTTP+JSON to the
// bridge endpoint; the data plane receives per-sensor point clouds as UDP
// datagrams on a StreamListener.
package sim

import "math"

// ActorID is the simulator-assigned identity of a spawned actor.
type ActorID uint32

// Location is a point in world coordinates (meters).
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance between two locations.
func (l Location) DistanceTo(o Location) float64 {
	dx := l.X - o.X
	dy := l.Y - o.Y
	dz := l.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Rotation holds simulator euler angles in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Transform is a world pose: location plus rotation.
type Transform struct {
	Location Location `json:"location"`
	Rotation Rotation `json:"rotation"`
}

// Extent holds the half-dimensions of an actor's bounding box.
type Extent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BoundingBox is an actor-local axis-aligned box. The extent is static for
// the lifetime of the actor; position comes from the tick snapshot.
type BoundingBox struct {
	Extent Extent `json:"extent"`
}

// Blueprint describes a spawnable actor type.
type Blueprint struct {
	ID        string `json:"id"`
	NumWheels int    `json:"num_wheels,omitempty"`
}

// Actor is the bridge's record of a successfully spawned actor.
type Actor struct {
	ID          ActorID     `json:"id"`
	Blueprint   string      `json:"blueprint"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// ActorState is one actor's entry in a tick snapshot.
type ActorState struct {
	Transform Transform `json:"transform"`
}

// Snapshot is the world state returned by a tick: the world frame counter
// and the current transform of every registered actor.
type Snapshot struct {
	Frame  uint64                 `json:"frame"`
	Actors map[ActorID]ActorState `json:"actors"`
}

// Find returns the state of an actor in the snapshot.
func (s *Snapshot) Find(id ActorID) (ActorState, bool) {
	st, ok := s.Actors[id]
	return st, ok
}

// LidarSample is one sensor capture delivered on the data plane.
// Points is a flat sequence of (x, y, z, intensity) float32 quads.
type LidarSample struct {
	Frame  uint64
	Pose   Transform
	Points []float32
}

// PointCount returns the number of (x,y,z,intensity) quads in the sample.
func (s LidarSample) PointCount() int { return len(s.Points) / 4 }

// LidarSettings configures a ray-cast lidar sensor at spawn time. The
// dropoff attributes are pinned so the sensor is lossless: the recorded
// cloud depends only on geometry, never on the simulator's intensity model.
type LidarSettings struct {
	Channels          int     `json:"channels"`
	Range             float64 `json:"range"`
	LowerFOV          float64 `json:"lower_fov"`
	PointsPerSecond   int     `json:"points_per_second"`
	RotationFrequency float64 `json:"rotation_frequency"`

	DropoffGeneralRate    float64 `json:"dropoff_general_rate"`
	DropoffIntensityLimit float64 `json:"dropoff_intensity_limit"`
	DropoffZeroIntensity  float64 `json:"dropoff_zero_intensity"`
}

// WorldSettings configures the simulator's execution mode for a run.
type WorldSettings struct {
	SynchronousMode   bool    `json:"synchronous_mode"`
	FixedDeltaSeconds float64 `json:"fixed_delta_seconds"`
	NoRenderingMode   bool    `json:"no_rendering_mode"`
}
