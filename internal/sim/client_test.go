package sim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type mockHTTP struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) { return m.fn(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestTrySpawnActorSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := NewClient(ClientConfig{Host: "sim", Port: 2000, HTTPClient: &mockHTTP{
		fn: func(req *http.Request) (*http.Response, error) {
			gotPath = req.URL.Path
			if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
				t.Fatalf("decode request body: %v", err)
			}
			return jsonResponse(200, `{"spawned":true,"actor":{"id":12,"blueprint":"vehicle.audi.tt","bounding_box":{"extent":{"x":2.2,"y":1.0,"z":0.7}}}}`), nil
		},
	}})

	a, err := c.TrySpawnActor("vehicle.audi.tt", Transform{Location: Location{X: 5}})
	if err != nil {
		t.Fatalf("TrySpawnActor: %v", err)
	}
	if a == nil || a.ID != 12 {
		t.Fatalf("actor = %+v, want id 12", a)
	}
	if a.BoundingBox.Extent.X != 2.2 {
		t.Errorf("extent x = %v, want 2.2", a.BoundingBox.Extent.X)
	}
	if gotPath != "/actors/spawn" {
		t.Errorf("path = %q, want /actors/spawn", gotPath)
	}
	if gotBody["blueprint"] != "vehicle.audi.tt" {
		t.Errorf("request blueprint = %v", gotBody["blueprint"])
	}
}

func TestTrySpawnActorCollision(t *testing.T) {
	c := NewClient(ClientConfig{Host: "sim", Port: 2000, HTTPClient: &mockHTTP{
		fn: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"spawned":false}`), nil
		},
	}})

	a, err := c.TrySpawnActor("vehicle.audi.tt", Transform{})
	if err != nil {
		t.Fatalf("collision must not be an error, got %v", err)
	}
	if a != nil {
		t.Fatalf("collision must return a nil actor, got %+v", a)
	}
}

func TestTickDecodesSnapshot(t *testing.T) {
	c := NewClient(ClientConfig{Host: "sim", Port: 2000, HTTPClient: &mockHTTP{
		fn: func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/world/tick" {
				t.Errorf("path = %q, want /world/tick", req.URL.Path)
			}
			return jsonResponse(200, `{"frame":101,"actors":{"12":{"transform":{"location":{"x":1,"y":2,"z":3},"rotation":{"yaw":45}}}}}`), nil
		},
	}})

	snap, err := c.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if snap.Frame != 101 {
		t.Errorf("frame = %d, want 101", snap.Frame)
	}
	st, ok := snap.Find(12)
	if !ok {
		t.Fatal("actor 12 missing from snapshot")
	}
	if st.Transform.Rotation.Yaw != 45 {
		t.Errorf("yaw = %v, want 45", st.Transform.Rotation.Yaw)
	}
}

func TestCallSurfacesErrorStatus(t *testing.T) {
	c := NewClient(ClientConfig{Host: "sim", Port: 2000, HTTPClient: &mockHTTP{
		fn: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(500, `simulation not running`), nil
		},
	}})

	if err := c.LoadWorld("Town03"); err == nil {
		t.Fatal("expected error from 500 response")
	} else if !strings.Contains(err.Error(), "simulation not running") {
		t.Errorf("error %q does not carry the response body", err)
	}
}

func TestListenLidarWithoutStream(t *testing.T) {
	c := NewClient(ClientConfig{Host: "sim", Port: 2000, HTTPClient: &mockHTTP{}})
	// Control-only clients have no data plane; registration is a no-op.
	c.ListenLidar(1, func(LidarSample) {})
}
