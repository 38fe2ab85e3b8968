// Command snippet records a synchronized lidar dataset from a running
// simulator bridge: it populates a scene, steps the world in lockstep
// and commits one frame per tick to a dataset file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scene.report/internal/sim"
	"github.com/banshee-data/scene.report/internal/snippet"
	"github.com/banshee-data/scene.report/internal/snippet/store"
	"github.com/banshee-data/scene.report/internal/version"
)

var (
	host       = flag.String("host", "127.0.0.1", "Simulator bridge host")
	port       = flag.Int("port", 2000, "Simulator bridge control port")
	streamPort = flag.Int("stream-port", 2369, "UDP port for the sensor data stream")

	mapName     = flag.String("map", "", "Map to load (empty keeps the current world)")
	vehicles    = flag.Int("vehicles", 10, "Vehicles to spawn, each with a roof lidar")
	pedestrians = flag.Int("pedestrians", 20, "Pedestrians to spawn")
	autopilot   = flag.Bool("autopilot", true, "Drive vehicles on autopilot")

	frames = flag.Int("frames", 200, "Frames to record")
	burn   = flag.Int("burn", 30, "Initial ticks to run and discard")
	seed   = flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")

	npoints   = flag.Int("npoints", snippet.DefaultPointsPerCloud, "Points per cloud (storage row length)")
	channels  = flag.Int("channels", snippet.DefaultChannels, "Lidar channels")
	sensorRng = flag.Float64("range", snippet.DefaultRange, "Lidar range in meters")
	lowerFOV  = flag.Float64("lower-fov", snippet.DefaultLowerFOV, "Lidar lower field of view in degrees")
	tickRate  = flag.Float64("tick-rate", snippet.DefaultTickRate, "Fixed simulation steps per second")
	noRender  = flag.Bool("no-render", false, "Disable simulator rendering")

	out           = flag.String("out", "", "Dataset output path (empty runs without writing)")
	sampleTimeout = flag.Duration("sample-timeout", snippet.DefaultSampleTimeout, "Wait per vehicle sample within one tick")
	maxMissed     = flag.Int("max-missed", 0, "Abort after this many consecutive discarded frames (0 retries forever)")
	spawnRetries  = flag.Int("spawn-retries", snippet.DefaultSpawnRetryCap, "Total vehicle placement attempts")
	walkerRetries = flag.Int("walker-retries", snippet.DefaultWalkerRetryCap, "Total pedestrian placement attempts")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("snippet %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	cfg := &snippet.Config{
		Map:                  *mapName,
		Channels:             *channels,
		Range:                *sensorRng,
		LowerFOV:             *lowerFOV,
		PointsPerCloud:       *npoints,
		TickRate:             *tickRate,
		Vehicles:             *vehicles,
		Pedestrians:          *pedestrians,
		Autopilot:            *autopilot,
		Frames:               *frames,
		Burn:                 *burn,
		Seed:                 *seed,
		SampleTimeout:        *sampleTimeout,
		MaxConsecutiveMisses: *maxMissed,
		SpawnRetryCap:        *spawnRetries,
		WalkerRetryCap:       *walkerRetries,
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := sim.NewStreamListener(sim.StreamListenerConfig{
		Address: fmt.Sprintf(":%d", *streamPort),
	})
	client := sim.NewClient(sim.ClientConfig{
		Host:   *host,
		Port:   *port,
		Stream: stream,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("stream listener: %v", err)
			stop()
		}
	}()

	if cfg.Map != "" {
		log.Printf("loading map %s", cfg.Map)
		if err := client.LoadWorld(cfg.Map); err != nil {
			log.Fatalf("failed to load map: %v", err)
		}
	}
	if err := client.ApplySettings(sim.WorldSettings{
		SynchronousMode:   true,
		FixedDeltaSeconds: 1 / cfg.TickRate,
		NoRenderingMode:   *noRender,
	}); err != nil {
		log.Fatalf("failed to apply world settings: %v", err)
	}
	if err := client.SetTrafficSeed(cfg.Seed); err != nil {
		log.Fatalf("failed to seed traffic: %v", err)
	}
	log.Printf("seed %d, recording %d frames after %d burn-in ticks", cfg.Seed, cfg.Frames, cfg.Burn)

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		log.Fatalf("failed to encode configuration: %v", err)
	}
	runID := uuid.New().String()

	runner := &snippet.Runner{Sim: client, Config: cfg}

	// The dataset is created only once the scene is fully populated, so
	// a failed placement leaves no file behind. No path means a dry run.
	var st *store.Store
	if *out != "" {
		runner.OpenStore = func(dims store.Dims) (snippet.FrameStore, error) {
			meta := store.Meta{
				RunID:      runID,
				Map:        cfg.Map,
				Seed:       cfg.Seed,
				TickRate:   cfg.TickRate,
				Dims:       dims,
				ConfigJSON: string(cfgJSON),
			}
			created, err := store.Create(*out, meta)
			if err != nil {
				return nil, err
			}
			st = created
			log.Printf("writing dataset %s (run %s)", *out, runID)
			return created, nil
		}
	} else {
		log.Printf("no output path, dry run (run %s)", runID)
	}

	runErr := runner.Run(ctx)

	stop()
	wg.Wait()
	if st != nil {
		if err := st.Close(); err != nil {
			log.Printf("failed to close dataset: %v", err)
		}
	}

	s := runner.Stats.Snapshot()
	log.Printf("run complete: %d frames recorded, %d discarded, %d points collected",
		s.FramesWritten, s.FramesDiscarded, s.PointsStored)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("recording failed: %v", runErr)
		os.Exit(1)
	}
}
