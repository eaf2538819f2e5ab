// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package region

import "errors"

var (
	ErrExtentClosed    = errors.New("region: extent is closed")
	ErrNoSuchExtent    = errors.New("region: no such extent")
	ErrBlockOutOfRange = errors.New("region: block offset out of range")
	ErrAlreadyWritten  = errors.New("region: block already written")
	ErrLengthMismatch  = errors.New("region: write payload does not match block size")
)
