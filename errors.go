// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package opcua

import (
	"errors"
	"fmt"
)

// StatusCode severity levels.
const (
	StatusSeverityGood      uint32 = 0x00000000
	StatusSeverityUncertain uint32 = 0x40000000
	StatusSeverityBad       uint32 = 0x80000000
	StatusSeverityMask      uint32 = 0xC0000000
)

// Status codes seen on the PubSub receive path.
const (
	StatusGood                         StatusCode = 0x00000000
	StatusUncertain                    StatusCode = 0x40000000
	StatusUncertainLastUsableValue     StatusCode = 0x40900000
	StatusUncertainSubstituteValue     StatusCode = 0x40910000
	StatusUncertainInitialValue        StatusCode = 0x40920000
	StatusUncertainSensorNotAccurate   StatusCode = 0x40930000
	StatusBad                          StatusCode = 0x80000000
	StatusBadUnexpectedError           StatusCode = 0x80010000
	StatusBadInternalError             StatusCode = 0x80020000
	StatusBadOutOfMemory               StatusCode = 0x80030000
	StatusBadCommunicationError        StatusCode = 0x80050000
	StatusBadEncodingError             StatusCode = 0x80060000
	StatusBadDecodingError             StatusCode = 0x80070000
	StatusBadEncodingLimitsExceeded    StatusCode = 0x80080000
	StatusBadTimeout                   StatusCode = 0x800A0000
	StatusBadShutdown                  StatusCode = 0x800C0000
	StatusBadDataTypeIdUnknown         StatusCode = 0x80110000
	StatusBadSecurityChecksFailed      StatusCode = 0x80130000
	StatusBadNoCommunication           StatusCode = 0x80310000
	StatusBadWaitingForInitialData     StatusCode = 0x80320000
	StatusBadDataEncodingInvalid       StatusCode = 0x80380000
	StatusBadDataEncodingUnsupported   StatusCode = 0x80390000
	StatusBadOutOfRange                StatusCode = 0x803C0000
	StatusBadNotSupported              StatusCode = 0x803D0000
	StatusBadNotFound                  StatusCode = 0x803E0000
	StatusBadConfigurationError        StatusCode = 0x80890000
	StatusBadNotConnected              StatusCode = 0x808A0000
	StatusBadDeviceFailure             StatusCode = 0x808B0000
	StatusBadSensorFailure             StatusCode = 0x808C0000
	StatusBadOutOfService              StatusCode = 0x808D0000
	StatusBadTypeMismatch              StatusCode = 0x80740000
	StatusBadInvalidArgument           StatusCode = 0x80AB0000
	StatusBadInvalidState              StatusCode = 0x80AF0000
	StatusBadEndOfStream               StatusCode = 0x80B00000
	StatusBadNoDataAvailable           StatusCode = 0x80B10000
	StatusBadSequenceNumberInvalid     StatusCode = 0x80880000
	StatusBadTcpMessageTooLarge        StatusCode = 0x80800000
	StatusBadResourceUnavailable       StatusCode = 0x80040000
	StatusBadSecurityModeInsufficient  StatusCode = 0x80E60000
	StatusBadSecurityPolicyRejected    StatusCode = 0x80550000
	StatusBadSecureChannelTokenUnknown StatusCode = 0x80870000
)

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                         {"Good", "The operation completed successfully"},
	StatusUncertain:                    {"Uncertain", "The value is uncertain"},
	StatusUncertainLastUsableValue:     {"UncertainLastUsableValue", "Whatever was updating this value has stopped doing so"},
	StatusUncertainSubstituteValue:     {"UncertainSubstituteValue", "The value is an operational value that was manually overwritten"},
	StatusUncertainInitialValue:        {"UncertainInitialValue", "The value is an initial value for a variable that normally receives its value from another variable"},
	StatusUncertainSensorNotAccurate:   {"UncertainSensorNotAccurate", "The value is at one of the sensor limits"},
	StatusBad:                          {"Bad", "The value is bad"},
	StatusBadUnexpectedError:           {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:             {"BadInternalError", "An internal error occurred"},
	StatusBadOutOfMemory:               {"BadOutOfMemory", "Not enough memory to complete the operation"},
	StatusBadResourceUnavailable:       {"BadResourceUnavailable", "An operating system resource is not available"},
	StatusBadCommunicationError:        {"BadCommunicationError", "A low level communication error occurred"},
	StatusBadEncodingError:             {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:             {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadEncodingLimitsExceeded:    {"BadEncodingLimitsExceeded", "The message encoding/decoding limits have been exceeded"},
	StatusBadTimeout:                   {"BadTimeout", "The operation timed out"},
	StatusBadShutdown:                  {"BadShutdown", "The operation was cancelled because the application is shutting down"},
	StatusBadDataTypeIdUnknown:         {"BadDataTypeIdUnknown", "The extension object cannot be decoded because the data type is not known"},
	StatusBadSecurityChecksFailed:      {"BadSecurityChecksFailed", "An error occurred verifying security"},
	StatusBadNoCommunication:           {"BadNoCommunication", "Communication with the data source is not available"},
	StatusBadWaitingForInitialData:     {"BadWaitingForInitialData", "Waiting for the server to obtain values from the data source"},
	StatusBadDataEncodingInvalid:       {"BadDataEncodingInvalid", "The data encoding is invalid"},
	StatusBadDataEncodingUnsupported:   {"BadDataEncodingUnsupported", "The requested data encoding is not supported"},
	StatusBadOutOfRange:                {"BadOutOfRange", "The value was out of range"},
	StatusBadNotSupported:              {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotFound:                  {"BadNotFound", "A requested item was not found"},
	StatusBadConfigurationError:        {"BadConfigurationError", "There is a configuration error"},
	StatusBadNotConnected:              {"BadNotConnected", "The variable should receive its value from another variable but has never been configured"},
	StatusBadDeviceFailure:             {"BadDeviceFailure", "There has been a failure in the device/data source"},
	StatusBadSensorFailure:             {"BadSensorFailure", "There has been a failure in the sensor"},
	StatusBadOutOfService:              {"BadOutOfService", "The source of the data is not operational"},
	StatusBadTypeMismatch:              {"BadTypeMismatch", "The value provided does not match the expected data type"},
	StatusBadInvalidArgument:           {"BadInvalidArgument", "One or more arguments are invalid"},
	StatusBadInvalidState:              {"BadInvalidState", "The operation cannot be completed because the object is closed or in an invalid state"},
	StatusBadEndOfStream:               {"BadEndOfStream", "Cannot move beyond end of the stream"},
	StatusBadNoDataAvailable:           {"BadNoDataAvailable", "No data is currently available"},
	StatusBadSequenceNumberInvalid:     {"BadSequenceNumberInvalid", "The sequence number is not valid"},
	StatusBadTcpMessageTooLarge:        {"BadTcpMessageTooLarge", "The message size exceeds the maximum allowed"},
	StatusBadSecurityModeInsufficient:  {"BadSecurityModeInsufficient", "The security mode is not acceptable for the operation"},
	StatusBadSecurityPolicyRejected:    {"BadSecurityPolicyRejected", "The security policy does not meet the requirements"},
	StatusBadSecureChannelTokenUnknown: {"BadSecureChannelTokenUnknown", "The token has expired or is not recognized"},
}

// String returns the string representation of the status code.
func (s StatusCode) String() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Description returns a human-readable description of the status code.
func (s StatusCode) Description() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.description
	}
	switch {
	case s.IsGood():
		return "The operation completed successfully"
	case s.IsUncertain():
		return "The operation completed with uncertain result"
	case s.IsBad():
		return "The operation failed"
	default:
		return "Unknown status"
	}
}

// Error returns a formatted error string with code, name, and description.
// A StatusCode is itself usable as a sentinel error:
//
//	errors.Is(err, opcua.StatusBadDecodingError)
func (s StatusCode) Error() string {
	if info, ok := statusCodeMap[s]; ok {
		return fmt.Sprintf("%s (0x%08X): %s", info.name, uint32(s), info.description)
	}
	return fmt.Sprintf("StatusCode 0x%08X", uint32(s))
}

// IsGood returns true if the status code indicates success.
func (s StatusCode) IsGood() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityGood
}

// IsUncertain returns true if the status code indicates uncertainty.
func (s StatusCode) IsUncertain() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityUncertain
}

// IsBad returns true if the status code indicates failure.
func (s StatusCode) IsBad() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityBad
}

// DecodeError records where in a buffer a decode failed.
type DecodeError struct {
	Offset int
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("opcua: decode failed at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Common errors.
var (
	// ErrUnsupportedType indicates a builtin type the decoder cannot handle.
	ErrUnsupportedType = errors.New("opcua: unsupported builtin type")

	// ErrTypeNotRegistered indicates an extension object whose encoding id
	// has no decoder in the registry.
	ErrTypeNotRegistered = errors.New("opcua: type not registered")
)

// StatusCodeOf extracts the status code carried by err. Errors that carry
// no status code map to StatusBadInternalError; nil maps to StatusGood.
func StatusCodeOf(err error) StatusCode {
	if err == nil {
		return StatusGood
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc
	}
	return StatusBadInternalError
}

// IsDecodingError reports whether err is a decoding failure.
func IsDecodingError(err error) bool {
	return errors.Is(err, StatusBadDecodingError)
}

// IsInvalidArgument reports whether err was caused by an absent or invalid input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, StatusBadInvalidArgument)
}

// IsInternalError reports whether err originated inside a decoding engine
// rather than from malformed input.
func IsInternalError(err error) bool {
	return errors.Is(err, StatusBadInternalError)
}

// IsBadStatusCode returns true if err carries a bad status code.
func IsBadStatusCode(err error) bool {
	return err != nil && StatusCodeOf(err).IsBad()
}
