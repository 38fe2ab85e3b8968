// Package store persists snippet recordings as fixed-shape, four-stream
// SQLite dataset files.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Dims is the fixed shape of a dataset file, decided before the loop
// starts and never changed afterwards.
type Dims struct {
	Frames         int
	Vehicles       int
	Pedestrians    int
	PointsPerCloud int
}

// Meta describes one recording run.
type Meta struct {
	RunID      string
	CreatedNs  int64
	Map        string
	Seed       int64
	TickRate   float64
	Dims       Dims
	ConfigJSON string
}

// FrameRecord is the complete set of per-actor measurements for one
// committed frame. Clouds must already be padded to PointsPerCloud×4.
type FrameRecord struct {
	Clouds          [][]float32
	CloudCounts     []int
	LidarPoses      [][6]float64
	VehicleBoxes    [][8]float64
	PedestrianBoxes [][8]float64
}

// NewFrameRecord allocates a zeroed record sized for the given shape.
func NewFrameRecord(d Dims) *FrameRecord {
	rec := &FrameRecord{
		Clouds:          make([][]float32, d.Vehicles),
		CloudCounts:     make([]int, d.Vehicles),
		LidarPoses:      make([][6]float64, d.Vehicles),
		VehicleBoxes:    make([][8]float64, d.Vehicles),
		PedestrianBoxes: make([][8]float64, d.Pedestrians),
	}
	for i := range rec.Clouds {
		rec.Clouds[i] = make([]float32, d.PointsPerCloud*4)
	}
	return rec
}

// Store is a snippet dataset file. Exclusively written by the recording
// loop; read access exists for the report tool and tests.
type Store struct {
	db   *sql.DB
	meta Meta
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Create creates (or truncates) a dataset file, writes the metadata row
// and pre-allocates every stream row zeroed.
func Create(path string, meta Meta) (*Store, error) {
	s, err := open(path)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		s.Close()
		return nil, fmt.Errorf("create dataset schema: %w", err)
	}

	if meta.RunID == "" {
		meta.RunID = uuid.New().String()
	}
	if meta.CreatedNs == 0 {
		meta.CreatedNs = time.Now().UnixNano()
	}
	s.meta = meta

	if err := s.preallocate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing dataset file for reading.
func Open(path string) (*Store, error) {
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	d := &s.meta.Dims
	err = s.db.QueryRow(
		`SELECT run_id, created_unix_nanos, map, seed, frames, nvehicles, npedestrians, points_per_cloud, tick_rate, config_json
		 FROM snippet_meta`).Scan(
		&s.meta.RunID, &s.meta.CreatedNs, &s.meta.Map, &s.meta.Seed,
		&d.Frames, &d.Vehicles, &d.Pedestrians, &d.PointsPerCloud,
		&s.meta.TickRate, &s.meta.ConfigJSON)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("read dataset metadata: %w", err)
	}
	return s, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Meta returns the run metadata.
func (s *Store) Meta() Meta { return s.meta }

// Close releases the file and codec resources.
func (s *Store) Close() error {
	if s.enc != nil {
		s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return s.db.Close()
}

// preallocate inserts zeroed rows for the full shape in one transaction.
// The zero cloud blob is identical across rows, so it is encoded once.
func (s *Store) preallocate() error {
	d := s.meta.Dims

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO snippet_meta (run_id, created_unix_nanos, map, seed, frames, nvehicles, npedestrians, points_per_cloud, tick_rate, config_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.meta.RunID, s.meta.CreatedNs, s.meta.Map, s.meta.Seed,
		d.Frames, d.Vehicles, d.Pedestrians, d.PointsPerCloud,
		s.meta.TickRate, s.meta.ConfigJSON); err != nil {
		return fmt.Errorf("write dataset metadata: %w", err)
	}

	zeroBlob := encodeCloud(s.enc, make([]float32, d.PointsPerCloud*4))

	cloudStmt, err := tx.Prepare(`INSERT INTO point_cloud (frame_idx, vehicle_idx, n_points, points) VALUES (?, ?, 0, ?)`)
	if err != nil {
		return err
	}
	defer cloudStmt.Close()
	poseStmt, err := tx.Prepare(`INSERT INTO lidar_pose (frame_idx, vehicle_idx) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer poseStmt.Close()
	vboxStmt, err := tx.Prepare(`INSERT INTO vehicle_box (frame_idx, vehicle_idx) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer vboxStmt.Close()
	pboxStmt, err := tx.Prepare(`INSERT INTO pedestrian_box (frame_idx, walker_idx) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer pboxStmt.Close()

	for f := 0; f < d.Frames; f++ {
		for v := 0; v < d.Vehicles; v++ {
			if _, err := cloudStmt.Exec(f, v, zeroBlob); err != nil {
				return fmt.Errorf("preallocate point_cloud[%d,%d]: %w", f, v, err)
			}
			if _, err := poseStmt.Exec(f, v); err != nil {
				return fmt.Errorf("preallocate lidar_pose[%d,%d]: %w", f, v, err)
			}
			if _, err := vboxStmt.Exec(f, v); err != nil {
				return fmt.Errorf("preallocate vehicle_box[%d,%d]: %w", f, v, err)
			}
		}
		for w := 0; w < d.Pedestrians; w++ {
			if _, err := pboxStmt.Exec(f, w); err != nil {
				return fmt.Errorf("preallocate pedestrian_box[%d,%d]: %w", f, w, err)
			}
		}
	}
	return tx.Commit()
}

// WriteFrame commits one frame's rows across all four streams in a
// single transaction. Only non-negative indices inside the allocated
// shape are accepted.
func (s *Store) WriteFrame(idx int, rec *FrameRecord) error {
	d := s.meta.Dims
	if idx < 0 || idx >= d.Frames {
		return fmt.Errorf("frame index %d outside allocated range [0,%d)", idx, d.Frames)
	}
	if len(rec.Clouds) != d.Vehicles || len(rec.PedestrianBoxes) != d.Pedestrians {
		return fmt.Errorf("frame record shape %dx%d does not match dataset %dx%d",
			len(rec.Clouds), len(rec.PedestrianBoxes), d.Vehicles, d.Pedestrians)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for v := 0; v < d.Vehicles; v++ {
		if len(rec.Clouds[v]) != d.PointsPerCloud*4 {
			return fmt.Errorf("vehicle %d cloud holds %d values, want %d", v, len(rec.Clouds[v]), d.PointsPerCloud*4)
		}
		blob := encodeCloud(s.enc, rec.Clouds[v])
		if _, err := tx.Exec(
			`UPDATE point_cloud SET n_points = ?, points = ? WHERE frame_idx = ? AND vehicle_idx = ?`,
			rec.CloudCounts[v], blob, idx, v); err != nil {
			return fmt.Errorf("write point_cloud[%d,%d]: %w", idx, v, err)
		}
		p := rec.LidarPoses[v]
		if _, err := tx.Exec(
			`UPDATE lidar_pose SET x = ?, y = ?, z = ?, pitch = ?, yaw = ?, roll = ? WHERE frame_idx = ? AND vehicle_idx = ?`,
			p[0], p[1], p[2], p[3], p[4], p[5], idx, v); err != nil {
			return fmt.Errorf("write lidar_pose[%d,%d]: %w", idx, v, err)
		}
		b := rec.VehicleBoxes[v]
		if _, err := tx.Exec(
			`UPDATE vehicle_box SET x = ?, y = ?, z = ?, yaw = ?, pitch = ?, length = ?, width = ?, height = ? WHERE frame_idx = ? AND vehicle_idx = ?`,
			b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7], idx, v); err != nil {
			return fmt.Errorf("write vehicle_box[%d,%d]: %w", idx, v, err)
		}
	}
	for w := 0; w < d.Pedestrians; w++ {
		b := rec.PedestrianBoxes[w]
		if _, err := tx.Exec(
			`UPDATE pedestrian_box SET x = ?, y = ?, z = ?, yaw = ?, pitch = ?, length = ?, width = ?, height = ? WHERE frame_idx = ? AND walker_idx = ?`,
			b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7], idx, w); err != nil {
			return fmt.Errorf("write pedestrian_box[%d,%d]: %w", idx, w, err)
		}
	}
	return tx.Commit()
}

// ReadCloud returns the padded point cloud for one (frame, vehicle) slot
// and the unpadded point count it was written with.
func (s *Store) ReadCloud(frame, vehicle int) ([]float32, int, error) {
	var n int
	var blob []byte
	err := s.db.QueryRow(
		`SELECT n_points, points FROM point_cloud WHERE frame_idx = ? AND vehicle_idx = ?`,
		frame, vehicle).Scan(&n, &blob)
	if err != nil {
		return nil, 0, fmt.Errorf("read point_cloud[%d,%d]: %w", frame, vehicle, err)
	}
	cloud, err := decodeCloud(s.dec, blob, s.meta.Dims.PointsPerCloud*4)
	if err != nil {
		return nil, 0, fmt.Errorf("read point_cloud[%d,%d]: %w", frame, vehicle, err)
	}
	return cloud, n, nil
}

// ReadLidarPose returns the sensor pose row for one slot.
func (s *Store) ReadLidarPose(frame, vehicle int) ([6]float64, error) {
	var p [6]float64
	err := s.db.QueryRow(
		`SELECT x, y, z, pitch, yaw, roll FROM lidar_pose WHERE frame_idx = ? AND vehicle_idx = ?`,
		frame, vehicle).Scan(&p[0], &p[1], &p[2], &p[3], &p[4], &p[5])
	if err != nil {
		return p, fmt.Errorf("read lidar_pose[%d,%d]: %w", frame, vehicle, err)
	}
	return p, nil
}

// ReadVehicleBox returns the vehicle bounding-box row for one slot.
func (s *Store) ReadVehicleBox(frame, vehicle int) ([8]float64, error) {
	return s.readBox("vehicle_box", "vehicle_idx", frame, vehicle)
}

// ReadPedestrianBox returns the pedestrian bounding-box row for one slot.
func (s *Store) ReadPedestrianBox(frame, walker int) ([8]float64, error) {
	return s.readBox("pedestrian_box", "walker_idx", frame, walker)
}

func (s *Store) readBox(table, idxCol string, frame, actor int) ([8]float64, error) {
	var b [8]float64
	q := fmt.Sprintf(
		`SELECT x, y, z, yaw, pitch, length, width, height FROM %s WHERE frame_idx = ? AND %s = ?`,
		table, idxCol)
	err := s.db.QueryRow(q, frame, actor).Scan(&b[0], &b[1], &b[2], &b[3], &b[4], &b[5], &b[6], &b[7])
	if err != nil {
		return b, fmt.Errorf("read %s[%d,%d]: %w", table, frame, actor, err)
	}
	return b, nil
}

// CloudCounts returns the unpadded point count for every (frame, vehicle)
// slot, indexed [frame][vehicle]. Slots never written stay zero.
func (s *Store) CloudCounts() ([][]int, error) {
	d := s.meta.Dims
	counts := make([][]int, d.Frames)
	for f := range counts {
		counts[f] = make([]int, d.Vehicles)
	}
	rows, err := s.db.Query(`SELECT frame_idx, vehicle_idx, n_points FROM point_cloud`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f, v, n int
		if err := rows.Scan(&f, &v, &n); err != nil {
			return nil, err
		}
		if f >= 0 && f < d.Frames && v >= 0 && v < d.Vehicles {
			counts[f][v] = n
		}
	}
	return counts, rows.Err()
}
