package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient abstracts the HTTP transport so tests can inject canned
// responses without a bridge process.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the bridge client.
type ClientConfig struct {
	// Host and Port locate the bridge's control endpoint.
	Host string
	Port int
	// HTTPClient overrides the transport; defaults to a 10s-timeout client.
	HTTPClient HTTPClient
	// Stream receives the sensor data plane. Optional for control-only use.
	Stream *StreamListener
}

// Client drives the simulator through its bridge. Control operations are
// HTTP+JSON request/response; sensor data arrives on the attached
// StreamListener.
type Client struct {
	base   string
	http   HTTPClient
	stream *StreamListener
}

// NewClient creates a bridge client for the given endpoint.
func NewClient(config ClientConfig) *Client {
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:   fmt.Sprintf("http://%s:%d", config.Host, config.Port),
		http:   hc,
		stream: config.Stream,
	}
}

// call POSTs a JSON body to path and decodes the JSON response into out.
// A non-2xx status becomes an error carrying the response body.
func (c *Client) call(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request for %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge call %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// LoadWorld loads a scene by name and resets the actor registry.
func (c *Client) LoadWorld(name string) error {
	return c.call(context.Background(), "/world/load", struct {
		Map string `json:"map"`
	}{name}, nil)
}

// ApplySettings switches the simulator into the given execution mode.
func (c *Client) ApplySettings(s WorldSettings) error {
	return c.call(context.Background(), "/world/settings", s, nil)
}

// SetTrafficSeed seeds the traffic manager and pedestrian navigation so
// autopilot behaviour is reproducible for a given seed.
func (c *Client) SetTrafficSeed(seed int64) error {
	return c.call(context.Background(), "/world/traffic_seed", struct {
		Seed int64 `json:"seed"`
	}{seed}, nil)
}

// Waypoints enumerates candidate spawn transforms along the road network
// at the given spacing in meters.
func (c *Client) Waypoints(spacing float64) ([]Transform, error) {
	var resp struct {
		Waypoints []Transform `json:"waypoints"`
	}
	err := c.call(context.Background(), "/world/waypoints", struct {
		Spacing float64 `json:"spacing"`
	}{spacing}, &resp)
	return resp.Waypoints, err
}

// RandomNavigationPoint queries a random reachable location on the
// pedestrian navigation mesh.
func (c *Client) RandomNavigationPoint() (Location, error) {
	var resp struct {
		Location Location `json:"location"`
	}
	err := c.call(context.Background(), "/world/navigation_point", nil, &resp)
	return resp.Location, err
}

// VehicleBlueprints lists spawnable vehicle blueprints with attributes.
func (c *Client) VehicleBlueprints() ([]Blueprint, error) {
	return c.blueprints("/blueprints/vehicles")
}

// WalkerBlueprints lists spawnable pedestrian blueprints.
func (c *Client) WalkerBlueprints() ([]Blueprint, error) {
	return c.blueprints("/blueprints/walkers")
}

func (c *Client) blueprints(path string) ([]Blueprint, error) {
	var resp struct {
		Blueprints []Blueprint `json:"blueprints"`
	}
	err := c.call(context.Background(), path, nil, &resp)
	return resp.Blueprints, err
}

// TrySpawnActor attempts to place an actor at the transform. A placement
// collision returns (nil, nil): it is the dominant failure mode while
// populating a scene and must leave no side effect. Transport or bridge
// failures return an error.
func (c *Client) TrySpawnActor(blueprint string, t Transform) (*Actor, error) {
	var resp struct {
		Spawned bool  `json:"spawned"`
		Actor   Actor `json:"actor"`
	}
	err := c.call(context.Background(), "/actors/spawn", struct {
		Blueprint string    `json:"blueprint"`
		Transform Transform `json:"transform"`
	}{blueprint, t}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Spawned {
		return nil, nil
	}
	a := resp.Actor
	return &a, nil
}

// SpawnLidar spawns a ray-cast lidar attached to a parent actor. The
// transform is relative to the parent. Unlike TrySpawnActor, attachment
// cannot collide, so failure here is always an error.
func (c *Client) SpawnLidar(settings LidarSettings, t Transform, parent ActorID) (*Actor, error) {
	var resp struct {
		Actor Actor `json:"actor"`
	}
	err := c.call(context.Background(), "/actors/spawn_lidar", struct {
		Settings  LidarSettings `json:"settings"`
		Transform Transform     `json:"transform"`
		Parent    ActorID       `json:"parent"`
	}{settings, t, parent}, &resp)
	if err != nil {
		return nil, err
	}
	a := resp.Actor
	return &a, nil
}

// SpawnWalkerController attaches a navigation controller to a walker.
// The controller is not started; the navigation system needs one tick to
// initialise before StartWalkerController is legal.
func (c *Client) SpawnWalkerController(parent ActorID) (*Actor, error) {
	var resp struct {
		Actor Actor `json:"actor"`
	}
	err := c.call(context.Background(), "/actors/spawn_walker_controller", struct {
		Parent ActorID `json:"parent"`
	}{parent}, &resp)
	if err != nil {
		return nil, err
	}
	a := resp.Actor
	return &a, nil
}

// SetAutopilot enables or disables autonomous driving for a vehicle.
func (c *Client) SetAutopilot(id ActorID, enabled bool) error {
	return c.call(context.Background(), "/actors/autopilot", struct {
		ID      ActorID `json:"id"`
		Enabled bool    `json:"enabled"`
	}{id, enabled}, nil)
}

// StartWalkerController starts a walker's navigation controller.
func (c *Client) StartWalkerController(id ActorID) error {
	return c.actorOp("/actors/walker/start", id)
}

// StopWalkerController stops a walker's navigation controller.
func (c *Client) StopWalkerController(id ActorID) error {
	return c.actorOp("/actors/walker/stop", id)
}

// WalkerGoTo issues a one-time move command towards a reachable location.
func (c *Client) WalkerGoTo(id ActorID, loc Location) error {
	return c.call(context.Background(), "/actors/walker/goto", struct {
		ID       ActorID  `json:"id"`
		Location Location `json:"location"`
	}{id, loc}, nil)
}

// DestroyActor removes an actor from the simulation.
func (c *Client) DestroyActor(id ActorID) error {
	return c.actorOp("/actors/destroy", id)
}

func (c *Client) actorOp(path string, id ActorID) error {
	return c.call(context.Background(), path, struct {
		ID ActorID `json:"id"`
	}{id}, nil)
}

// Tick advances the simulation one fixed step and returns the resulting
// snapshot. Blocks until the simulated step completes, or ctx is done.
func (c *Client) Tick(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.call(ctx, "/world/tick", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListenLidar registers fn to receive samples pushed by the given sensor
// on the data plane. fn runs on the stream listener goroutine and must
// not block.
func (c *Client) ListenLidar(id ActorID, fn func(LidarSample)) {
	if c.stream != nil {
		c.stream.Listen(id, fn)
	}
}
