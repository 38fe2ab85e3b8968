package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDims() Dims {
	return Dims{Frames: 2, Vehicles: 2, Pedestrians: 1, PointsPerCloud: 4}
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snippet.db")
	s, err := Create(path, Meta{Map: "Town03", Seed: 7, TickRate: 10, Dims: testDims()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// float16-exact values so storage round-trips without precision loss.
func testCloud(n int, base float32) []float32 {
	cloud := make([]float32, n*4)
	for i := range cloud {
		cloud[i] = base + float32(i)*0.25
	}
	return cloud
}

func TestCreateFillsMetaDefaults(t *testing.T) {
	s := createTestStore(t)
	m := s.Meta()
	assert.NotEmpty(t, m.RunID)
	assert.NotZero(t, m.CreatedNs)
	assert.Equal(t, "Town03", m.Map)
	assert.Equal(t, testDims(), m.Dims)
}

func TestPreallocatedRowsAreZero(t *testing.T) {
	s := createTestStore(t)
	d := testDims()
	for f := 0; f < d.Frames; f++ {
		for v := 0; v < d.Vehicles; v++ {
			cloud, n, err := s.ReadCloud(f, v)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			assert.Len(t, cloud, d.PointsPerCloud*4)
			for _, val := range cloud {
				require.Zero(t, val)
			}
			pose, err := s.ReadLidarPose(f, v)
			require.NoError(t, err)
			assert.Equal(t, [6]float64{}, pose)
		}
		box, err := s.ReadPedestrianBox(f, 0)
		require.NoError(t, err)
		assert.Equal(t, [8]float64{}, box)
	}
}

func TestWriteFrameRoundTrip(t *testing.T) {
	s := createTestStore(t)
	d := testDims()

	rec := NewFrameRecord(d)
	// Vehicle 0 fills the whole row, vehicle 1 only half of it.
	copy(rec.Clouds[0], testCloud(4, 1))
	rec.CloudCounts[0] = 4
	copy(rec.Clouds[1], testCloud(2, 10))
	rec.CloudCounts[1] = 2
	rec.LidarPoses[0] = [6]float64{1, 2, 3, 0, 90, 0}
	rec.VehicleBoxes[0] = [8]float64{1, 2, 3.75, 90, 0, 4.4, 2, 1.5}
	rec.PedestrianBoxes[0] = [8]float64{5, 6, 1, 0, 0, 0.8, 0.8, 1.8}

	require.NoError(t, s.WriteFrame(1, rec))

	cloud, n, err := s.ReadCloud(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, testCloud(4, 1), cloud)

	// The short cloud keeps its data prefix and a zero pad suffix.
	cloud, n, err = s.ReadCloud(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, testCloud(2, 10), cloud[:8])
	for _, v := range cloud[8:] {
		require.Zero(t, v)
	}

	pose, err := s.ReadLidarPose(1, 0)
	require.NoError(t, err)
	assert.Equal(t, [6]float64{1, 2, 3, 0, 90, 0}, pose)

	box, err := s.ReadVehicleBox(1, 0)
	require.NoError(t, err)
	assert.Equal(t, [8]float64{1, 2, 3.75, 90, 0, 4.4, 2, 1.5}, box)

	pbox, err := s.ReadPedestrianBox(1, 0)
	require.NoError(t, err)
	assert.Equal(t, [8]float64{5, 6, 1, 0, 0, 0.8, 0.8, 1.8}, pbox)

	// Frame 0 was never written and stays zeroed.
	_, n, err = s.ReadCloud(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteFrameRejectsBadShapes(t *testing.T) {
	s := createTestStore(t)
	d := testDims()

	rec := NewFrameRecord(d)
	require.Error(t, s.WriteFrame(-1, rec), "negative index")
	require.Error(t, s.WriteFrame(d.Frames, rec), "index past allocation")

	short := NewFrameRecord(d)
	short.Clouds[0] = short.Clouds[0][:4]
	err := s.WriteFrame(0, short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud")

	wrongVehicles := NewFrameRecord(Dims{Frames: 2, Vehicles: 1, Pedestrians: 1, PointsPerCloud: 4})
	require.Error(t, s.WriteFrame(0, wrongVehicles))
}

func TestOpenReadsBackMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippet.db")
	created, err := Create(path, Meta{Map: "Town05", Seed: 99, TickRate: 20, Dims: testDims(), ConfigJSON: `{"frames":2}`})
	require.NoError(t, err)
	runID := created.Meta().RunID
	require.NoError(t, created.Close())

	opened, err := Open(path)
	require.NoError(t, err)
	defer opened.Close()

	m := opened.Meta()
	assert.Equal(t, runID, m.RunID)
	assert.Equal(t, "Town05", m.Map)
	assert.Equal(t, int64(99), m.Seed)
	assert.Equal(t, 20.0, m.TickRate)
	assert.Equal(t, testDims(), m.Dims)
	assert.Equal(t, `{"frames":2}`, m.ConfigJSON)
}

func TestCloudCounts(t *testing.T) {
	s := createTestStore(t)
	d := testDims()

	rec := NewFrameRecord(d)
	rec.CloudCounts[0] = 3
	rec.CloudCounts[1] = 1
	require.NoError(t, s.WriteFrame(0, rec))

	counts, err := s.CloudCounts()
	require.NoError(t, err)
	require.Len(t, counts, d.Frames)
	assert.Equal(t, []int{3, 1}, counts[0])
	assert.Equal(t, []int{0, 0}, counts[1])
}

func TestCloudCodecRoundTrip(t *testing.T) {
	s := createTestStore(t)

	in := []float32{0, 1.5, -2.25, 100, 0.125, -0.5, 3, 4}
	blob := encodeCloud(s.enc, in)
	out, err := decodeCloud(s.dec, blob, len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeCloud(s.dec, blob, len(in)+1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bytes"))
}
