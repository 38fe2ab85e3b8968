package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"time"
)

// Datagram layout (little-endian). A cloud larger than one datagram is
// split into chunks; every chunk repeats the pose so reassembly never
// depends on chunk order for metadata.
//
//	offset  size  field
//	0       4     magic 0x4C534E50 ("LSNP")
//	4       4     sensor actor id
//	8       8     world frame id
//	16      2     chunk index
//	18      2     chunk count
//	20      24    sensor pose: x y z pitch yaw roll (float32)
//	44      4     point count in this chunk
//	48      16×n  points: x y z intensity (float32)
const (
	streamMagic      = 0x4C534E50
	streamHeaderSize = 48

	// MaxPointsPerDatagram keeps chunk payloads under the UDP limit.
	MaxPointsPerDatagram = 4000
)

// StreamStats tracks data-plane counters.
type StreamStats struct {
	mu        sync.Mutex
	datagrams int64
	bytes     int64
	clouds    int64
	dropped   int64
	unknown   int64
	malformed int64
	lastReset time.Time
}

func (s *StreamStats) addDatagram(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datagrams++
	s.bytes += int64(n)
}

func (s *StreamStats) addCloud() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clouds++
}

func (s *StreamStats) addDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

func (s *StreamStats) addUnknown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown++
}

func (s *StreamStats) addMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
}

// GetAndReset returns the counters accumulated since the previous call
// and zeroes them.
func (s *StreamStats) GetAndReset() (datagrams, bytes, clouds, dropped int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.lastReset.IsZero() {
		s.lastReset = now
	}
	d = now.Sub(s.lastReset)
	datagrams, bytes, clouds, dropped = s.datagrams, s.bytes, s.clouds, s.dropped
	s.datagrams, s.bytes, s.clouds, s.dropped = 0, 0, 0, 0
	s.unknown, s.malformed = 0, 0
	s.lastReset = now
	return
}

// pendingCloud is a cloud under reassembly for one sensor.
type pendingCloud struct {
	frame      uint64
	pose       Transform
	chunkCount int
	received   int
	chunks     [][]float32
}

// StreamListenerConfig configures the sensor data plane listener.
type StreamListenerConfig struct {
	// Address is the UDP bind address, e.g. ":2369".
	Address string
	// RcvBuf is the socket receive buffer size; defaults to 4MB.
	RcvBuf int
	// LogInterval controls periodic stats logging; defaults to 1 minute.
	LogInterval time.Duration
}

// StreamListener receives sensor datagrams, reassembles chunked clouds
// and dispatches complete samples to per-sensor callbacks. Dispatch runs
// on the listener goroutine: there is exactly one producer thread no
// matter how many sensors are registered, which is what the recorder's
// mailbox contract relies on.
type StreamListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       *StreamStats

	mu       sync.Mutex
	handlers map[ActorID]func(LidarSample)
	pending  map[ActorID]*pendingCloud
}

// NewStreamListener creates a data plane listener with the given config.
func NewStreamListener(config StreamListenerConfig) *StreamListener {
	rcvBuf := config.RcvBuf
	if rcvBuf == 0 {
		rcvBuf = 4 << 20
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &StreamListener{
		address:     config.Address,
		rcvBuf:      rcvBuf,
		logInterval: logInterval,
		stats:       &StreamStats{},
		handlers:    make(map[ActorID]func(LidarSample)),
		pending:     make(map[ActorID]*pendingCloud),
	}
}

// Listen registers a callback for one sensor's samples. The callback runs
// on the listener goroutine and must not block.
func (l *StreamListener) Listen(id ActorID, fn func(LidarSample)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[id] = fn
}

// Stats exposes the listener counters.
func (l *StreamListener) Stats() *StreamStats { return l.stats }

// Start binds the UDP socket and receives datagrams until ctx is done.
func (l *StreamListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve stream address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on stream address: %w", err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		log.Printf("Warning: failed to set stream receive buffer to %d: %v", l.rcvBuf, err)
	}
	log.Printf("Sensor stream listener started on %s", l.address)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			log.Print("Sensor stream listener stopping")
			return ctx.Err()
		default:
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("Stream read error: %v", err)
				continue
			}
			if err := l.HandleDatagram(buffer[:n]); err != nil {
				log.Printf("Error handling sensor datagram: %v", err)
			}
		}
	}
}

func (l *StreamListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			datagrams, bytes, clouds, dropped, d := l.stats.GetAndReset()
			if datagrams == 0 {
				continue
			}
			msg := fmt.Sprintf("Stream stats (/sec): %.1f MB, %.1f datagrams, %.1f clouds",
				float64(bytes)/d.Seconds()/(1024*1024),
				float64(datagrams)/d.Seconds(),
				float64(clouds)/d.Seconds())
			if dropped > 0 {
				msg += fmt.Sprintf(", %d incomplete clouds dropped", dropped)
			}
			log.Print(msg)
		}
	}
}

// HandleDatagram decodes one datagram and feeds it into reassembly. It is
// exported so replay sources (pcap) can inject packets through the same
// dispatch path as the live socket.
func (l *StreamListener) HandleDatagram(packet []byte) error {
	l.stats.addDatagram(len(packet))

	id, frame, chunkIdx, chunkCount, pose, points, err := decodeStreamDatagram(packet)
	if err != nil {
		l.stats.addMalformed()
		return err
	}

	l.mu.Lock()
	fn, known := l.handlers[id]
	if !known {
		delete(l.pending, id)
		l.mu.Unlock()
		l.stats.addUnknown()
		return nil
	}

	p := l.pending[id]
	if p == nil || p.frame != frame {
		if p != nil && p.received < p.chunkCount {
			l.stats.addDropped()
		}
		p = &pendingCloud{
			frame:      frame,
			pose:       pose,
			chunkCount: chunkCount,
			chunks:     make([][]float32, chunkCount),
		}
		l.pending[id] = p
	}
	if chunkIdx < len(p.chunks) && p.chunks[chunkIdx] == nil {
		p.chunks[chunkIdx] = points
		p.received++
	}

	var sample LidarSample
	complete := p.received == p.chunkCount
	if complete {
		total := 0
		for _, c := range p.chunks {
			total += len(c)
		}
		flat := make([]float32, 0, total)
		for _, c := range p.chunks {
			flat = append(flat, c...)
		}
		sample = LidarSample{Frame: p.frame, Pose: p.pose, Points: flat}
		delete(l.pending, id)
	}
	l.mu.Unlock()

	if complete {
		l.stats.addCloud()
		fn(sample)
	}
	return nil
}

func decodeStreamDatagram(packet []byte) (id ActorID, frame uint64, chunkIdx, chunkCount int, pose Transform, points []float32, err error) {
	if len(packet) < streamHeaderSize {
		err = fmt.Errorf("datagram too short: %d bytes", len(packet))
		return
	}
	if binary.LittleEndian.Uint32(packet[0:4]) != streamMagic {
		err = fmt.Errorf("bad stream magic")
		return
	}
	id = ActorID(binary.LittleEndian.Uint32(packet[4:8]))
	frame = binary.LittleEndian.Uint64(packet[8:16])
	chunkIdx = int(binary.LittleEndian.Uint16(packet[16:18]))
	chunkCount = int(binary.LittleEndian.Uint16(packet[18:20]))
	if chunkCount == 0 || chunkIdx >= chunkCount {
		err = fmt.Errorf("bad chunk header %d/%d", chunkIdx, chunkCount)
		return
	}

	f32 := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(packet[off : off+4])))
	}
	pose = Transform{
		Location: Location{X: f32(20), Y: f32(24), Z: f32(28)},
		Rotation: Rotation{Pitch: f32(32), Yaw: f32(36), Roll: f32(40)},
	}

	count := int(binary.LittleEndian.Uint32(packet[44:48]))
	want := streamHeaderSize + count*16
	if count < 0 || len(packet) < want {
		err = fmt.Errorf("truncated datagram: %d points, %d bytes", count, len(packet))
		return
	}
	points = make([]float32, count*4)
	for i := range points {
		points[i] = math.Float32frombits(binary.LittleEndian.Uint32(packet[streamHeaderSize+i*4:]))
	}
	return
}

// EncodeStreamDatagrams splits a sample into wire datagrams. The bridge
// side of this codec lives in the bridge process; this encoder exists for
// tests and synthetic replay.
func EncodeStreamDatagrams(id ActorID, sample LidarSample) [][]byte {
	n := sample.PointCount()
	chunkCount := (n + MaxPointsPerDatagram - 1) / MaxPointsPerDatagram
	if chunkCount == 0 {
		chunkCount = 1
	}

	out := make([][]byte, 0, chunkCount)
	for ci := 0; ci < chunkCount; ci++ {
		lo := ci * MaxPointsPerDatagram
		hi := lo + MaxPointsPerDatagram
		if hi > n {
			hi = n
		}
		points := sample.Points[lo*4 : hi*4]

		buf := make([]byte, streamHeaderSize+len(points)*4)
		binary.LittleEndian.PutUint32(buf[0:4], streamMagic)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
		binary.LittleEndian.PutUint64(buf[8:16], sample.Frame)
		binary.LittleEndian.PutUint16(buf[16:18], uint16(ci))
		binary.LittleEndian.PutUint16(buf[18:20], uint16(chunkCount))
		for i, v := range []float64{
			sample.Pose.Location.X, sample.Pose.Location.Y, sample.Pose.Location.Z,
			sample.Pose.Rotation.Pitch, sample.Pose.Rotation.Yaw, sample.Pose.Rotation.Roll,
		} {
			binary.LittleEndian.PutUint32(buf[20+i*4:], math.Float32bits(float32(v)))
		}
		binary.LittleEndian.PutUint32(buf[44:48], uint32(hi-lo))
		for i, v := range points {
			binary.LittleEndian.PutUint32(buf[streamHeaderSize+i*4:], math.Float32bits(v))
		}
		out = append(out, buf)
	}
	return out
}
