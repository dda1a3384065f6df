package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxAdvertisingDataSize is the advertising data budget of a legacy
	// advertising PDU.
	MaxAdvertisingDataSize = 31

	// LocalName is the fixed device name carried in every Sensilo beacon.
	LocalName = "Sensilo"

	// CompanyID marks the manufacturer-specific structure as Sensilo's.
	// 0xffff is the reserved test identifier, transmitted little-endian.
	CompanyID uint16 = 0xffff

	adTypeCompleteLocalName = 0x09
	adTypeManufacturerData  = 0xff

	adHeaderSize  = 2 // length byte + AD type byte
	companyIDSize = 2
)

// PayloadBudget returns how many manufacturer payload bytes fit in an
// advertisement that also carries the given complete local name.
func PayloadBudget(name string) int {
	return MaxAdvertisingDataSize - (adHeaderSize + len(name)) - (adHeaderSize + companyIDSize)
}

var errAdvertisingDataTooLarge = errors.New("ble: advertising data exceeds 31 bytes")

// BuildAdvertisingData assembles the advertising data unit for one beacon:
// a complete local name structure followed by a manufacturer-specific
// structure whose body is the company identifier plus the beacon payload.
func BuildAdvertisingData(name string, payload []byte) ([]byte, error) {
	size := adHeaderSize + len(name) + adHeaderSize + companyIDSize + len(payload)
	if size > MaxAdvertisingDataSize {
		return nil, fmt.Errorf("%w: name %q and %d payload bytes need %d",
			errAdvertisingDataTooLarge, name, len(payload), size)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, byte(1+len(name)), adTypeCompleteLocalName)
	buf = append(buf, name...)
	buf = append(buf, byte(1+companyIDSize+len(payload)), adTypeManufacturerData)
	buf = binary.LittleEndian.AppendUint16(buf, CompanyID)
	buf = append(buf, payload...)
	return buf, nil
}

// parseADStructures walks the [length][type][data...] structures in an
// advertising data unit and fills in the report's name and manufacturer
// payload. Structures of other types are ignored. A length byte running
// past the end of the data is a framing error.
func parseADStructures(data []byte, rpt *AdvertisingReport) error {
	for len(data) > 0 {
		length := int(data[0])
		if length == 0 {
			// Zero-length structure: remainder is padding.
			return nil
		}
		if 1+length > len(data) {
			return fmt.Errorf("ble: AD structure length %d overruns %d remaining bytes",
				length, len(data)-1)
		}
		adType := data[1]
		body := data[2 : 1+length]
		switch adType {
		case adTypeCompleteLocalName:
			rpt.LocalName = string(body)
		case adTypeManufacturerData:
			if len(body) < companyIDSize {
				return fmt.Errorf("ble: manufacturer structure of %d bytes has no company identifier", len(body))
			}
			rpt.HasManufacturerData = true
			rpt.CompanyID = binary.LittleEndian.Uint16(body)
			rpt.ManufacturerData = body[companyIDSize:]
		}
		data = data[1+length:]
	}
	return nil
}
