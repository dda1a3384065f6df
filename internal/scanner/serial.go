package scanner

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"
)

// H4 packet type bytes, used to delimit packets on the byte stream.
const (
	h4Command = 0x01
	h4ACLData = 0x02
	h4SCOData = 0x03
	h4Event   = 0x04
)

// SerialSource reads H4 packets from a UART HCI monitor (a controller in
// raw H4 mode, or a sniffer forwarding its HCI stream over serial).
type SerialSource struct {
	portName string
	baudRate int
	open     func() (io.ReadCloser, error)
}

// NewSerialSource opens the named serial port at the given baud rate.
// baudRate <= 0 defaults to 115200.
func NewSerialSource(portName string, baudRate int) *SerialSource {
	if baudRate <= 0 {
		baudRate = 115200
	}
	s := &SerialSource{portName: portName, baudRate: baudRate}
	s.open = func() (io.ReadCloser, error) {
		mode := &serial.Mode{
			BaudRate: s.baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(s.portName, mode)
		if err != nil {
			return nil, fmt.Errorf("opening serial port %s: %w", s.portName, err)
		}
		return port, nil
	}
	return s
}

func (s *SerialSource) Name() string {
	return "serial " + s.portName
}

// Run reads the port until the context is cancelled or the port fails.
func (s *SerialSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	port, err := s.open()
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("scanner: serial source reading %s at %d baud", s.portName, s.baudRate)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	reader := bufio.NewReader(port)
	for {
		pkt, err := readH4Packet(reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading serial H4 stream: %w", err)
		}
		if pkt != nil {
			emit(pkt, time.Now())
		}
	}
}

// readH4Packet delimits one H4 packet on the stream. An unknown packet
// type byte desynchronizes the stream; it is skipped so the reader can
// resynchronize on the next valid type byte, and nil is returned.
func readH4Packet(r *bufio.Reader) ([]byte, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	// Header size and where the payload length lives depend on the type.
	var headerLen int
	var lengthAt int
	var lengthSize int
	switch typeByte {
	case h4Command:
		headerLen, lengthAt, lengthSize = 3, 2, 1 // opcode(2) + length(1)
	case h4ACLData:
		headerLen, lengthAt, lengthSize = 4, 2, 2 // handle(2) + length(2)
	case h4SCOData:
		headerLen, lengthAt, lengthSize = 3, 2, 1 // handle(2) + length(1)
	case h4Event:
		headerLen, lengthAt, lengthSize = 2, 1, 1 // event(1) + length(1)
	default:
		return nil, nil // resync on next byte
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	var payloadLen int
	if lengthSize == 2 {
		payloadLen = int(binary.LittleEndian.Uint16(header[lengthAt:]))
	} else {
		payloadLen = int(header[lengthAt])
	}

	pkt := make([]byte, 0, 1+headerLen+payloadLen)
	pkt = append(pkt, typeByte)
	pkt = append(pkt, header...)
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return append(pkt, payload...), nil
}
