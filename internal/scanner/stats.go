package scanner

import (
	"log"
	"sync"
	"time"
)

// PacketStats tracks capture counters with thread-safe operations.
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	advertisements int64
	malformed      int64
	dropped        int64
	lastLog        time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastLog: time.Now()}
}

// AddPacket counts one captured packet.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddAdvertisement counts one matched Sensilo advertisement.
func (ps *PacketStats) AddAdvertisement() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.advertisements++
}

// AddMalformed counts one skipped malformed packet.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformed++
}

// AddDropped counts one advertisement shed from the full queue.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

// Snapshot holds a point-in-time copy of the counters.
type Snapshot struct {
	Packets        int64 `json:"packets"`
	Bytes          int64 `json:"bytes"`
	Advertisements int64 `json:"advertisements"`
	Malformed      int64 `json:"malformed"`
	Dropped        int64 `json:"dropped"`
}

// Snapshot returns the current counter values.
func (ps *PacketStats) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Packets:        ps.packetCount,
		Bytes:          ps.byteCount,
		Advertisements: ps.advertisements,
		Malformed:      ps.malformed,
		Dropped:        ps.dropped,
	}
}

// LogStats emits one summary line and notes the time.
func (ps *PacketStats) LogStats() {
	ps.mu.Lock()
	elapsed := time.Since(ps.lastLog)
	ps.lastLog = time.Now()
	snap := Snapshot{
		Packets:        ps.packetCount,
		Bytes:          ps.byteCount,
		Advertisements: ps.advertisements,
		Malformed:      ps.malformed,
		Dropped:        ps.dropped,
	}
	ps.mu.Unlock()
	log.Printf("scanner: %d packets (%d bytes), %d advertisements, %d malformed, %d dropped (last %v)",
		snap.Packets, snap.Bytes, snap.Advertisements, snap.Malformed, snap.Dropped, elapsed.Round(time.Second))
}
