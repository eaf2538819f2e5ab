// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"github.com/luxfi/node/codec"
	"github.com/luxfi/node/codec/linearcodec"
	"github.com/luxfi/node/utils/units"
	"github.com/luxfi/node/utils/wrappers"
)

const (
	// Version is the wire protocol version. Peers advertising a different
	// version are rejected at step 0 of negotiation.
	Version = uint16(1)

	maxMessageSize = 4 * units.MiB
)

// Codec is the shared manager used to marshal/unmarshal every Frame.
var Codec codec.Manager

func init() {
	Codec = codec.NewManager(maxMessageSize)
	c := linearcodec.NewDefault()

	errs := wrappers.Errs{}
	errs.Add(
		c.RegisterType(Ruok{}),
		c.RegisterType(Imok{}),
		c.RegisterType(HereIAm{}),
		c.RegisterType(YesItsMe{}),
		c.RegisterType(PromoteToActive{}),
		c.RegisterType(YouAreNowActive{}),
		c.RegisterType(YouAreNoLongerActive{}),
		c.RegisterType(UuidMismatch{}),
		c.RegisterType(ReadOnlyMismatch{}),
		c.RegisterType(EncryptedMismatch{}),

		c.RegisterType(RegionInfoPlease{}),
		c.RegisterType(RegionInfo{}),
		c.RegisterType(LastFlush{}),
		c.RegisterType(LastFlushAck{}),
		c.RegisterType(ExtentVersionsPlease{}),
		c.RegisterType(ExtentVersions{}),

		c.RegisterType(ReadRequest{}),
		c.RegisterType(WriteMsg{}),
		c.RegisterType(WriteUnwrittenMsg{}),
		c.RegisterType(FlushMsg{}),
		c.RegisterType(ReadResponse{}),
		c.RegisterType(WriteAck{}),
		c.RegisterType(WriteUnwrittenAck{}),
		c.RegisterType(FlushAck{}),

		c.RegisterType(ExtentFlush{}),
		c.RegisterType(ExtentClose{}),
		c.RegisterType(ExtentRepair{}),
		c.RegisterType(ExtentReopen{}),
		c.RegisterType(RepairAckId{}),
		c.RegisterType(ExtentError{}),

		Codec.RegisterCodec(Version, c),
	)
	if errs.Errored() {
		panic(errs.Err)
	}
}

// Marshal encodes a frame for transmission.
func Marshal(f Frame) ([]byte, error) {
	return Codec.Marshal(Version, &f)
}

// Unmarshal decodes a frame previously produced by Marshal.
func Unmarshal(b []byte) (Frame, error) {
	var f Frame
	if _, err := Codec.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}
