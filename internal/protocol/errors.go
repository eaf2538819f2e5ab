// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "errors"

var (
	// ErrUnknownFrame names a frame whose discriminant has no registered Go
	// type. Unmarshal does not return it: it passes the codec's own error
	// through unchanged.
	ErrUnknownFrame = errors.New("protocol: unknown frame discriminant")

	// ErrFrameTooLarge is returned when a frame exceeds maxFrameBytes.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")
)
