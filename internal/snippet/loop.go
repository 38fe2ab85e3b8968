package snippet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/banshee-data/scene.report/internal/sim"
	"github.com/banshee-data/scene.report/internal/snippet/store"
)

// ErrTooManyMisses reports that the loop discarded more consecutive
// frames than the configured tolerance.
var ErrTooManyMisses = errors.New("too many consecutive sample misses")

// progressInterval is how often the loop reports recording progress.
const progressInterval = 50

// Runner drives the simulator in lockstep and commits one frame per
// tick: tick, wait for every vehicle's sample, assemble, write.
type Runner struct {
	Sim Simulator

	// Store receives the committed frames. A nil store runs the loop dry:
	// frames are collected and counted but nothing is written.
	Store FrameStore

	// OpenStore, when set, creates the store once the scene is populated,
	// so a failed population leaves no dataset file behind. The result is
	// assigned to Store.
	OpenStore func(store.Dims) (FrameStore, error)

	Config *Config
	Stats  RunStats

	pop *Population
}

// Run populates the scene, records the configured number of frames and
// tears the scene down again. It returns the context error on
// cancellation, ErrRetriesExhausted when the scene cannot be populated
// and ErrTooManyMisses when sample collection keeps failing. Cleanup
// runs in every case, including cancellation and partial population.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.Config
	rng := rand.New(rand.NewSource(cfg.Seed))

	pop, err := Populate(ctx, r.Sim, cfg, rng)
	if pop != nil {
		r.pop = pop
		defer pop.Cleanup(r.Sim)
	}
	if err != nil {
		return err
	}

	dims := store.Dims{
		Frames:         cfg.Frames,
		Vehicles:       len(pop.Vehicles),
		Pedestrians:    len(pop.Walkers),
		PointsPerCloud: cfg.PointsPerCloud,
	}
	if r.OpenStore != nil {
		st, err := r.OpenStore(dims)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		r.Store = st
	}

	frameIndex := -cfg.Burn
	controllersStarted := false
	misses := 0

	for frameIndex < cfg.Frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := r.Sim.Tick(ctx)
		if err != nil {
			return fmt.Errorf("tick: %w", err)
		}

		rec, points, err := r.collectFrame(ctx, snap, dims)
		if errors.Is(err, ErrMailboxTimeout) {
			// The tick happened but its data is incomplete. Stay on the
			// same index so the dataset keeps no gaps.
			r.Stats.frameDiscarded()
			misses++
			log.Printf("frame %d discarded: %v (consecutive misses: %d)", frameIndex, err, misses)
			if cfg.MaxConsecutiveMisses > 0 && misses >= cfg.MaxConsecutiveMisses {
				return fmt.Errorf("%d consecutive misses: %w", misses, ErrTooManyMisses)
			}
			continue
		}
		if err != nil {
			return err
		}
		misses = 0

		if frameIndex >= 0 {
			if r.Store != nil {
				if err := r.Store.WriteFrame(frameIndex, rec); err != nil {
					return fmt.Errorf("write frame %d: %w", frameIndex, err)
				}
			}
			r.Stats.frameWritten(points)
			if (frameIndex+1)%progressInterval == 0 || frameIndex+1 == cfg.Frames {
				log.Printf("recorded %d/%d frames", frameIndex+1, cfg.Frames)
			}
		}
		frameIndex++

		// Pedestrians hold still through the burn-in and the first
		// recorded frame, then start walking. Vehicles are already on
		// autopilot from spawn time. A run too short to reach a second
		// frame never starts them.
		if !controllersStarted && frameIndex == 1 && frameIndex < cfg.Frames {
			for _, h := range pop.Walkers {
				if err := h.StartController(r.Sim); err != nil {
					return err
				}
			}
			controllersStarted = true
		}
	}
	return nil
}

// collectFrame drains one sample per vehicle and assembles the frame
// record for the given snapshot. On the first mailbox timeout it aborts
// the whole frame; samples already taken are dropped, samples still
// queued stay queued.
func (r *Runner) collectFrame(ctx context.Context, snap *sim.Snapshot, dims store.Dims) (*store.FrameRecord, int, error) {
	cfg := r.Config
	rec := store.NewFrameRecord(dims)
	points := 0

	for v, h := range r.pop.Vehicles {
		s, err := h.Mailbox.PopWait(ctx, cfg.SampleTimeout)
		if err != nil {
			if errors.Is(err, ErrMailboxTimeout) {
				return nil, 0, fmt.Errorf("vehicle %d (lidar %d): %w", v, h.Lidar.ID, err)
			}
			return nil, 0, err
		}
		if s.Frame != snap.Frame {
			log.Printf("vehicle %d: sample from world frame %d while ticking %d", v, s.Frame, snap.Frame)
		}

		n := s.PointCount()
		if n > cfg.PointsPerCloud {
			r.Stats.cloudTruncated()
			log.Printf("vehicle %d: cloud of %d points truncated to %d", v, n, cfg.PointsPerCloud)
			n = cfg.PointsPerCloud
		}
		copy(rec.Clouds[v], s.Points[:n*4])
		rec.CloudCounts[v] = n
		points += n

		p := s.Pose
		rec.LidarPoses[v] = [6]float64{
			p.Location.X, p.Location.Y, p.Location.Z,
			p.Rotation.Pitch, p.Rotation.Yaw, p.Rotation.Roll,
		}

		st, ok := snap.Find(h.Vehicle.ID)
		if !ok {
			return nil, 0, fmt.Errorf("vehicle %d missing from snapshot frame %d", h.Vehicle.ID, snap.Frame)
		}
		ext := h.Vehicle.BoundingBox.Extent
		rec.VehicleBoxes[v] = [8]float64{
			st.Transform.Location.X,
			st.Transform.Location.Y,
			st.Transform.Location.Z + ext.Z, // box center sits above the actor origin
			st.Transform.Rotation.Yaw,
			st.Transform.Rotation.Pitch,
			2 * ext.X, 2 * ext.Y, 2 * ext.Z,
		}
	}

	for w, h := range r.pop.Walkers {
		st, ok := snap.Find(h.Walker.ID)
		if !ok {
			return nil, 0, fmt.Errorf("walker %d missing from snapshot frame %d", h.Walker.ID, snap.Frame)
		}
		ext := h.Walker.BoundingBox.Extent
		rec.PedestrianBoxes[w] = [8]float64{
			st.Transform.Location.X,
			st.Transform.Location.Y,
			st.Transform.Location.Z,
			st.Transform.Rotation.Yaw,
			st.Transform.Rotation.Pitch,
			2 * ext.X, 2 * ext.Y, 2 * ext.Z,
		}
	}
	return rec, points, nil
}
