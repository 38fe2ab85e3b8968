// Package geom converts between sensor-local and world coordinates
// using the pose convention of the simulator: euler angles in degrees,
// applied yaw then pitch then roll.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/scene.report/internal/sim"
)

// PoseMatrix builds the homogeneous 4x4 sensor-to-world matrix for a
// pose: rotation Rz(yaw) * Ry(pitch) * Rx(roll) followed by the
// translation of the pose location.
func PoseMatrix(pose sim.Transform) *mat.Dense {
	yaw := pose.Rotation.Yaw * math.Pi / 180
	pitch := pose.Rotation.Pitch * math.Pi / 180
	roll := pose.Rotation.Roll * math.Pi / 180

	rz := mat.NewDense(4, 4, []float64{
		math.Cos(yaw), -math.Sin(yaw), 0, 0,
		math.Sin(yaw), math.Cos(yaw), 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	ry := mat.NewDense(4, 4, []float64{
		math.Cos(pitch), 0, math.Sin(pitch), 0,
		0, 1, 0, 0,
		-math.Sin(pitch), 0, math.Cos(pitch), 0,
		0, 0, 0, 1,
	})
	rx := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, math.Cos(roll), -math.Sin(roll), 0,
		0, math.Sin(roll), math.Cos(roll), 0,
		0, 0, 0, 1,
	})

	m := mat.NewDense(4, 4, nil)
	m.Mul(rz, ry)
	m.Mul(m, rx)
	m.Set(0, 3, pose.Location.X)
	m.Set(1, 3, pose.Location.Y)
	m.Set(2, 3, pose.Location.Z)
	return m
}

// TransformCloud maps the x, y, z of every (x, y, z, intensity) quad in
// points through the pose, leaving intensity untouched. With inverse
// set, world coordinates map back into the sensor frame.
func TransformCloud(pose sim.Transform, points []float32, inverse bool) ([]float32, error) {
	if len(points)%4 != 0 {
		return nil, fmt.Errorf("cloud length %d is not a multiple of 4", len(points))
	}
	m := PoseMatrix(pose)
	if inverse {
		var inv mat.Dense
		if err := inv.Inverse(m); err != nil {
			return nil, fmt.Errorf("invert pose matrix: %w", err)
		}
		m = &inv
	}

	out := make([]float32, len(points))
	v := mat.NewVecDense(4, nil)
	res := mat.NewVecDense(4, nil)
	for i := 0; i < len(points); i += 4 {
		v.SetVec(0, float64(points[i]))
		v.SetVec(1, float64(points[i+1]))
		v.SetVec(2, float64(points[i+2]))
		v.SetVec(3, 1)
		res.MulVec(m, v)
		out[i] = float32(res.AtVec(0))
		out[i+1] = float32(res.AtVec(1))
		out[i+2] = float32(res.AtVec(2))
		out[i+3] = points[i+3]
	}
	return out, nil
}
