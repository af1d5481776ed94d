package controller

import (
	"errors"

	"github.com/autopeer-io/seatlink/internal/actuator"
)

var (
	// ErrConfig marks a malformed session configuration. It is the only
	// error that aborts a session.
	ErrConfig = errors.New("controller: invalid configuration")
	// ErrUnknownSeat is returned for a seat that is not part of the session.
	ErrUnknownSeat = errors.New("controller: unknown seat")
	// ErrUnknownInput is returned for an input name the robot model does not bind.
	ErrUnknownInput = actuator.ErrUnknownInput
	// ErrSeatUnavailable reports a send that was dropped because the seat is
	// closed or its write failed. Send swallows it; SendFrame returns it.
	ErrSeatUnavailable = errors.New("controller: seat unavailable")
)
