// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	applog "melscope/internal/log"
)

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description              |
|-------------------|----------------|--------------|--------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing |
| Timestamp         | int64          | 8            | Nanoseconds since epoch  |
| Band Count        | uint16         | 2            | Number of mel bands (N)  |
| Column Pixels     | []byte (RGBA)  | N * 4        | One color-mapped column  |
+------------------------------------------------------------------------------+
*/

// ColumnPublisher packs color-mapped spectrogram columns into a binary
// packet format and sends them over UDP through a UDPSender. It is
// push-driven: the frame handler calls Publish after each processed
// frame, and the publisher throttles output to the configured
// interval so slow-frame consumers are not flooded.
type ColumnPublisher struct {
	sender   *UDPSender
	numBands int
	interval time.Duration

	mu          sync.Mutex
	sequenceNum uint32
	lastSend    time.Time

	// Reusable buffer for constructing packets, avoids per-column
	// allocations on the frame path.
	packetBuffer *bytes.Buffer
}

// NewColumnPublisher creates a publisher for columns of numBands RGBA
// quads. If the interval is invalid (<= 0) it defaults to 16ms (~60Hz).
func NewColumnPublisher(interval time.Duration, sender *UDPSender, numBands int) (*ColumnPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("ColumnPublisher: UDP sender cannot be nil")
	}
	if numBands <= 0 {
		return nil, fmt.Errorf("ColumnPublisher: band count must be positive, got %d", numBands)
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("ColumnPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("ColumnPublisher: Initializing (Interval: %s, Bands: %d)", interval, numBands)

	return &ColumnPublisher{
		sender:       sender,
		numBands:     numBands,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Publish sends one color-mapped column, which must be exactly
// numBands*4 bytes of RGBA data. Columns arriving faster than the
// configured interval are silently dropped.
func (p *ColumnPublisher) Publish(column []byte) error {
	if len(column) != p.numBands*4 {
		return fmt.Errorf("ColumnPublisher: column length %d, expected %d", len(column), p.numBands*4)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastSend) < p.interval {
		return nil
	}
	p.lastSend = now

	p.sequenceNum++
	timestamp := now.UnixNano()

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(p.numBands))
	}
	if err == nil {
		_, err = p.packetBuffer.Write(column)
	}
	if err != nil {
		applog.Errorf("ColumnPublisher: Error packing packet: %v", err)
		return err
	}

	packetBytes := p.packetBuffer.Bytes()
	if err := p.sender.Send(packetBytes); err != nil {
		return err
	}
	applog.Debugf("ColumnPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packetBytes))
	return nil
}

// Send implements the transport.Transport interface. data must be a
// []byte column as accepted by Publish.
func (p *ColumnPublisher) Send(data any) error {
	column, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("ColumnPublisher: unsupported payload type %T", data)
	}
	return p.Publish(column)
}

// Close closes the underlying sender.
func (p *ColumnPublisher) Close() error {
	return p.sender.Close()
}
