package snippet

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/banshee-data/scene.report/internal/sim"
)

// Car blueprints with unusable geometry or physics for roof-mounted
// capture. Matched against the blueprint ID suffix.
var deniedVehicleSuffixes = []string{"isetta", "carlacola", "cybertruck", "t2"}

// FilterVehicleBlueprints keeps four-wheeled blueprints and drops the
// deny-listed models.
func FilterVehicleBlueprints(bps []sim.Blueprint) []sim.Blueprint {
	out := make([]sim.Blueprint, 0, len(bps))
	for _, bp := range bps {
		if bp.NumWheels != 4 {
			continue
		}
		denied := false
		for _, suffix := range deniedVehicleSuffixes {
			if strings.HasSuffix(bp.ID, suffix) {
				denied = true
				break
			}
		}
		if !denied {
			out = append(out, bp)
		}
	}
	return out
}

// LidarMountHeight returns the roof mount height above the vehicle
// origin: clear of the body, plus enough extra that the lower edge of
// the vertical field of view grazes the vehicle's own longest half
// dimension instead of cutting through it.
func LidarMountHeight(ext sim.Extent, lowerFOV float64) float64 {
	reach := math.Max(ext.X, ext.Y)
	return 2*ext.Z + reach*math.Tan(-lowerFOV*math.Pi/180)
}

// lidarSettings derives the sensor configuration for one run. The
// rotation frequency matches the tick rate so every tick yields exactly
// one full revolution, and the point budget is sized so that revolution
// carries at most PointsPerCloud returns. Dropoff stays zeroed from the
// struct so capture is lossless.
func lidarSettings(cfg *Config) sim.LidarSettings {
	return sim.LidarSettings{
		Channels:          cfg.Channels,
		Range:             cfg.Range,
		LowerFOV:          cfg.LowerFOV,
		PointsPerSecond:   int(float64(cfg.PointsPerCloud) * cfg.TickRate),
		RotationFrequency: cfg.TickRate,
	}
}

// VehicleHandle pairs a spawned vehicle with its roof lidar and the
// mailbox its samples arrive on.
type VehicleHandle struct {
	Vehicle *sim.Actor
	Lidar   *sim.Actor
	Mailbox *SensorMailbox
}

// TrySpawnVehicle attempts to place one vehicle at the given transform
// and, on success, mounts a lidar on its roof and registers the sample
// stream. A blocked spawn point returns (nil, nil); the caller retries
// elsewhere.
func TrySpawnVehicle(s Simulator, cfg *Config, blueprint string, at sim.Transform) (*VehicleHandle, error) {
	at.Location.Z += groundClearance
	vehicle, err := s.TrySpawnActor(blueprint, at)
	if err != nil {
		return nil, fmt.Errorf("spawn vehicle %s: %w", blueprint, err)
	}
	if vehicle == nil {
		return nil, nil
	}

	mount := sim.Transform{Location: sim.Location{
		Z: LidarMountHeight(vehicle.BoundingBox.Extent, cfg.LowerFOV),
	}}
	lidar, err := s.SpawnLidar(lidarSettings(cfg), mount, vehicle.ID)
	if err != nil {
		// The vehicle is up but its handle never left this function, so
		// no cleanup sweep will find it. Take it down here.
		if derr := s.DestroyActor(vehicle.ID); derr != nil {
			log.Printf("destroy vehicle %d after failed lidar spawn: %v", vehicle.ID, derr)
		}
		return nil, fmt.Errorf("spawn lidar on %d: %w", vehicle.ID, err)
	}

	h := &VehicleHandle{Vehicle: vehicle, Lidar: lidar, Mailbox: NewSensorMailbox()}
	s.ListenLidar(lidar.ID, func(ls sim.LidarSample) {
		h.Mailbox.Push(Sample{Frame: ls.Frame, Pose: ls.Pose, Points: ls.Points})
	})
	return h, nil
}

// DestroySensor removes the vehicle's lidar. Sensors must go before the
// bodies they are attached to.
func (h *VehicleHandle) DestroySensor(s Simulator) error {
	if h.Lidar == nil {
		return nil
	}
	err := s.DestroyActor(h.Lidar.ID)
	h.Lidar = nil
	return err
}

// DestroyBody removes the vehicle itself.
func (h *VehicleHandle) DestroyBody(s Simulator) error {
	if h.Vehicle == nil {
		return nil
	}
	err := s.DestroyActor(h.Vehicle.ID)
	h.Vehicle = nil
	return err
}
