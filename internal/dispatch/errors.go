// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import "errors"

// ErrProtocolViolation is returned when a frame arrives that has no valid
// meaning in steady state (anything other than Ruok, an IO frame, or a
// repair frame). The connection supervisor closes the connection.
var ErrProtocolViolation = errors.New("dispatch: protocol violation")
