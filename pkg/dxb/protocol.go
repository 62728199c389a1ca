package dxb

import "fmt"

// ProtocolType is the data type carried in the signed header.
type ProtocolType byte

const (
	ProtocolRequest       ProtocolType = 0
	ProtocolResponse      ProtocolType = 1
	ProtocolData          ProtocolType = 2
	ProtocolBCTransaction ProtocolType = 3
	ProtocolLocalRequest  ProtocolType = 4
	ProtocolHello         ProtocolType = 6
)

var protocolNames = []string{"REQUEST", "RESPONSE", "DATA", "BC_TRNSCT", "LOCAL_REQ", "-", "HELLO"}

func (t ProtocolType) String() string {
	if int(t) < len(protocolNames) {
		return protocolNames[t]
	}
	return fmt.Sprintf("PROTOCOL(%d)", byte(t))
}

// Executable reports whether blocks of this type are executed by default.
func (t ProtocolType) Executable() bool {
	return t == ProtocolRequest || t == ProtocolLocalRequest
}

// Device types packed into the low five bits of the header flag byte.
const (
	DeviceDefault  = 0
	DeviceMobile   = 1
	DeviceNetwork  = 2
	DeviceEmbedded = 3
	DeviceVirtual  = 4
)

// Wire constants.
const (
	Magic0  byte = 0x01
	Magic1  byte = 0x64
	Version byte = 1

	// BigBangTime is the epoch (unix ms) header timestamps are relative to.
	BigBangTime int64 = 1642806000000

	DefaultTTL = 64

	SignatureSize    = 96
	IVSize           = 16
	EncryptedKeySize = 512

	MaxBlockSize      = 65535
	MaxSID            = 4294967295
	MaxBlockCounter   = 65535
	MaxPointerIDSize  = 26
	StaticPointerSize = 18

	// FloodReceivers marks a receiver-less broadcast block.
	FloodReceivers = 0xffff
)
