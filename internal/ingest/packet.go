// Package ingest owns the live heart-rate packet boundary: the wire model,
// the NATS subscriber, and a deterministic simulator for dev mode.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Packet is one reading from the wearable, arriving roughly once per second
// while connected. RRIntervals carries the inter-beat intervals (ms)
// observed since the previous packet; it may be empty when the sensor
// reports rate only.
type Packet struct {
	HeartRate   int       `json:"heart_rate"`
	RRIntervals []float64 `json:"rr_intervals,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ParsePacket decodes and structurally validates a JSON packet. Only
// malformed input is an error; physiologically implausible intervals are the
// processing pipeline's concern, not the transport's.
func ParsePacket(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("failed to unmarshal packet: %w", err)
	}
	if p.HeartRate < 0 {
		return Packet{}, fmt.Errorf("negative heart rate %d", p.HeartRate)
	}
	if p.Timestamp.IsZero() {
		return Packet{}, fmt.Errorf("packet missing timestamp")
	}
	return p, nil
}
