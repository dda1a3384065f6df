package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	lower, err := ParseAddress("864fe067997a")
	require.NoError(t, err)
	upper, err := ParseAddress("864FE067997A")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, "864fe067997a", lower.String())

	_, err = ParseAddress("864fe067997")
	assert.Error(t, err)
	_, err = ParseAddress("zz4fe067997a")
	assert.Error(t, err)
}

func TestAddressWireOrder(t *testing.T) {
	addr, err := ParseAddress("864fe067997a")
	require.NoError(t, err)

	wire := addr.Wire()
	assert.Equal(t, [6]byte{0x7a, 0x99, 0x67, 0xe0, 0x4f, 0x86}, wire)

	back, err := AddressFromWire(wire[:])
	require.NoError(t, err)
	assert.Equal(t, addr, back)

	_, err = AddressFromWire([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAdvertisingReportRoundTrip(t *testing.T) {
	addr, err := ParseAddress("864fe067997a")
	require.NoError(t, err)
	payload := []byte{0x05, 0x00, 0x01, 0xe4, 0x57, 0x00, 0x00}

	advData, err := BuildAdvertisingData(LocalName, payload)
	require.NoError(t, err)
	require.LessOrEqual(t, len(advData), MaxAdvertisingDataSize)

	pkt := EncodeAdvertisingReport(addr, -63, advData)
	rpt, err := ParseAdvertisingReport(pkt)
	require.NoError(t, err)

	assert.Equal(t, addr, rpt.Address)
	assert.Equal(t, int8(-63), rpt.RSSI)
	assert.Equal(t, LocalName, rpt.LocalName)
	assert.True(t, rpt.HasManufacturerData)
	assert.Equal(t, CompanyID, rpt.CompanyID)
	assert.Equal(t, payload, rpt.ManufacturerData)
}

func TestBuildAdvertisingDataBudget(t *testing.T) {
	budget := PayloadBudget(LocalName)
	assert.Equal(t, 18, budget)

	_, err := BuildAdvertisingData(LocalName, make([]byte, budget))
	assert.NoError(t, err)
	_, err = BuildAdvertisingData(LocalName, make([]byte, budget+1))
	assert.Error(t, err)
}

func TestParseRejectsUninterestingPackets(t *testing.T) {
	cases := []struct {
		name string
		pkt  []byte
	}{
		{"ACL data packet", []byte{0x02, 0x00, 0x00, 0x00, 0x00}},
		{"command complete event", []byte{0x04, 0x0e, 0x03, 0x01, 0x00, 0x00}},
		{"other LE meta subevent", []byte{0x04, 0x3e, 0x0c, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAdvertisingReport(tc.pkt)
			assert.ErrorIs(t, err, ErrNotAdvertisingReport)
		})
	}
}

func TestParseRejectsMalformedPackets(t *testing.T) {
	addr, err := ParseAddress("864fe067997a")
	require.NoError(t, err)
	advData, err := BuildAdvertisingData(LocalName, []byte{0x05, 0x00})
	require.NoError(t, err)
	good := EncodeAdvertisingReport(addr, -60, advData)

	cases := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"header only", good[:3]},
		{"truncated report", good[:len(good)-4]},
		{"zero reports", func() []byte {
			pkt := append([]byte(nil), good...)
			pkt[4] = 0
			return pkt
		}()},
		{"AD length overrun", func() []byte {
			pkt := append([]byte(nil), good...)
			// First AD structure claims to be longer than the data block.
			pkt[14] = 0x1f
			return pkt
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAdvertisingReport(tc.pkt)
			assert.Error(t, err)
		})
	}
}

func TestStripPseudoHeader(t *testing.T) {
	h4 := []byte{0x04, 0x3e, 0x00}

	out, err := StripPseudoHeader(LinkTypeH4, h4)
	require.NoError(t, err)
	assert.Equal(t, h4, out)

	prefixed := append([]byte{0, 0, 0, 1}, h4...)
	out, err = StripPseudoHeader(LinkTypeH4WithPseudo, prefixed)
	require.NoError(t, err)
	assert.Equal(t, h4, out)

	_, err = StripPseudoHeader(LinkTypeH4WithPseudo, []byte{0, 0})
	assert.Error(t, err)
	_, err = StripPseudoHeader(1, h4)
	assert.Error(t, err)
}
