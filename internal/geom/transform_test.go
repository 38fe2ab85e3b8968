package geom

import (
	"math"
	"testing"

	"github.com/banshee-data/scene.report/internal/sim"
)

func approxEqual(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTransformCloudIdentity(t *testing.T) {
	points := []float32{1, 2, 3, 0.5, -4, 5, -6, 0.9}
	out, err := TransformCloud(sim.Transform{}, points, false)
	if err != nil {
		t.Fatalf("TransformCloud: %v", err)
	}
	approxEqual(t, out, points, 1e-6)
}

func TestTransformCloudTranslation(t *testing.T) {
	pose := sim.Transform{Location: sim.Location{X: 10, Y: -20, Z: 5}}
	out, err := TransformCloud(pose, []float32{1, 1, 1, 0.7}, false)
	if err != nil {
		t.Fatalf("TransformCloud: %v", err)
	}
	approxEqual(t, out, []float32{11, -19, 6, 0.7}, 1e-5)
}

func TestTransformCloudYaw(t *testing.T) {
	// A 90 degree yaw turns the sensor x axis onto the world y axis.
	pose := sim.Transform{Rotation: sim.Rotation{Yaw: 90}}
	out, err := TransformCloud(pose, []float32{1, 0, 0, 0.3}, false)
	if err != nil {
		t.Fatalf("TransformCloud: %v", err)
	}
	approxEqual(t, out, []float32{0, 1, 0, 0.3}, 1e-5)
}

func TestTransformCloudInverseRoundTrip(t *testing.T) {
	pose := sim.Transform{
		Location: sim.Location{X: 3, Y: -7, Z: 2.5},
		Rotation: sim.Rotation{Pitch: 10, Yaw: 35, Roll: -5},
	}
	points := []float32{1, 2, 3, 0.5, -2, 0.5, 7, 0.1, 0, 0, 0, 1}

	world, err := TransformCloud(pose, points, false)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	back, err := TransformCloud(pose, world, true)
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	approxEqual(t, back, points, 1e-4)
}

func TestTransformCloudIntensityUntouched(t *testing.T) {
	pose := sim.Transform{Rotation: sim.Rotation{Yaw: 123, Pitch: 45, Roll: 9}}
	points := []float32{5, 6, 7, 0.42}
	out, err := TransformCloud(pose, points, false)
	if err != nil {
		t.Fatalf("TransformCloud: %v", err)
	}
	if out[3] != 0.42 {
		t.Errorf("intensity = %v, want 0.42", out[3])
	}
}

func TestTransformCloudRejectsRaggedInput(t *testing.T) {
	if _, err := TransformCloud(sim.Transform{}, []float32{1, 2, 3}, false); err == nil {
		t.Error("expected error for input not in xyzi quads")
	}
}
