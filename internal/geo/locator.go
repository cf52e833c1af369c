package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats the position as "lat, lng" with five decimals.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Latitude, c.Longitude)
}

// Request describes how a position should be acquired.
type Request struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Locator acquires the device position.
type Locator interface {
	Locate(ctx context.Context, req Request) (Coordinates, error)
}

// ErrorCode classifies a geolocation failure.
type ErrorCode string

const (
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeTimeout          ErrorCode = "timeout"
)

// LocationError is a geolocation failure with a known cause.
type LocationError struct {
	Code ErrorCode
	Err  error
}

func (e *LocationError) Error() string {
	switch e.Code {
	case CodePermissionDenied:
		return "location permission denied"
	case CodeTimeout:
		return "location request timed out"
	default:
		return "location unavailable"
	}
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// ParseErrorCode maps a reported code onto a known ErrorCode, defaulting to unavailable.
func ParseErrorCode(s string) ErrorCode {
	switch ErrorCode(s) {
	case CodePermissionDenied, CodeTimeout:
		return ErrorCode(s)
	default:
		return CodeUnavailable
	}
}

// CodeOf extracts the failure code from err. Context deadlines count as timeouts.
func CodeOf(err error) ErrorCode {
	var locErr *LocationError
	if errors.As(err, &locErr) {
		return locErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnavailable
}

// Fixed returns coordinates the client device already acquired.
type Fixed struct {
	Coordinates Coordinates
}

// Locate returns the fixed coordinates unless ctx is already done.
func (f Fixed) Locate(ctx context.Context, _ Request) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, &LocationError{Code: CodeOf(err), Err: err}
	}
	if f.Coordinates.Latitude < -90 || f.Coordinates.Latitude > 90 ||
		f.Coordinates.Longitude < -180 || f.Coordinates.Longitude > 180 {
		return Coordinates{}, &LocationError{Code: CodeUnavailable, Err: fmt.Errorf("coordinates out of range: %s", f.Coordinates)}
	}
	return f.Coordinates, nil
}

// Failed replays an error the client device reported.
type Failed struct {
	Code ErrorCode
}

// Locate always fails with the reported code.
func (f Failed) Locate(context.Context, Request) (Coordinates, error) {
	return Coordinates{}, &LocationError{Code: f.Code}
}

// Func adapts a function to the Locator interface.
type Func func(ctx context.Context, req Request) (Coordinates, error)

// Locate calls f.
func (f Func) Locate(ctx context.Context, req Request) (Coordinates, error) {
	return f(ctx, req)
}
