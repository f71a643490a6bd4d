package common

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Status Codes
// --------------------------------------------------------------------------

// Status is the 32-bit result code carried in the header of every reply.
// The two high bits encode the severity; 0b11 marks an error.
type Status uint32

const (
	StatusOK                     Status = 0x00000000
	StatusInvalidHandle          Status = 0xC0000008
	StatusInvalidParameter       Status = 0xC000000D
	StatusNoMemory               Status = 0xC0000017
	StatusAccessDenied           Status = 0xC0000022
	StatusInvalidNetworkResponse Status = 0xC00000C3
	StatusCancelled              Status = 0xC0000120
	StatusConnectionDisconnected Status = 0xC000020C
	StatusRequestAborted         Status = 0xC0000240
	StatusInsufficientResources  Status = 0xC000009A
	StatusBufferOverflow         Status = 0x80000005
	StatusMoreProcessingRequired Status = 0xC0000016
	dosStatusMarker              Status = 0xF1000000
	statusSeverityMask           Status = 0xC0000000
)

// DOSStatus builds a status from an old-style error class and code pair.
func DOSStatus(class uint8, code uint16) Status {
	return dosStatusMarker | Status(class)<<16 | Status(code)
}

// IsDOS reports whether the status was built from a DOS class/code pair
func (s Status) IsDOS() bool {
	return s&0xFF000000 == dosStatusMarker
}

// IsOK reports whether the status is exactly StatusOK
func (s Status) IsOK() bool {
	return s == StatusOK
}

// IsError reports whether the status has error severity
func (s Status) IsError() bool {
	return s&statusSeverityMask == statusSeverityMask
}

// String returns the symbolic name of a known status or its hex value
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidHandle:
		return "INVALID_HANDLE"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusNoMemory:
		return "NO_MEMORY"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusInvalidNetworkResponse:
		return "INVALID_NETWORK_RESPONSE"
	case StatusCancelled:
		return "CANCELLED"
	case StatusConnectionDisconnected:
		return "CONNECTION_DISCONNECTED"
	case StatusRequestAborted:
		return "REQUEST_ABORTED"
	case StatusInsufficientResources:
		return "INSUFFICIENT_RESOURCES"
	case StatusBufferOverflow:
		return "BUFFER_OVERFLOW"
	case StatusMoreProcessingRequired:
		return "MORE_PROCESSING_REQUIRED"
	}
	if s.IsDOS() {
		return fmt.Sprintf("DOS(class=%d, code=%d)", uint8(s>>16), uint16(s))
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}
