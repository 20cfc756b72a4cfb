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

package uacodec

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

// StatusCode is an OPC UA status code.
type StatusCode uint32

// Status codes used by the codec and commonly found in encoded payloads.
const (
	StatusGood      StatusCode = 0x00000000
	StatusUncertain StatusCode = 0x40000000
	StatusBad       StatusCode = 0x80000000

	StatusBadUnexpectedError         StatusCode = 0x80010000
	StatusBadInternalError           StatusCode = 0x80020000
	StatusBadOutOfMemory             StatusCode = 0x80030000
	StatusBadResourceUnavailable     StatusCode = 0x80040000
	StatusBadCommunicationError      StatusCode = 0x80050000
	StatusBadEncodingError           StatusCode = 0x80060000
	StatusBadDecodingError           StatusCode = 0x80070000
	StatusBadEncodingLimitsExceeded  StatusCode = 0x80080000
	StatusBadTimeout                 StatusCode = 0x800A0000
	StatusBadServiceUnsupported      StatusCode = 0x800B0000
	StatusBadServerNotConnected      StatusCode = 0x800D0000
	StatusBadNothingToDo             StatusCode = 0x800F0000
	StatusBadTooManyOperations       StatusCode = 0x80100000
	StatusBadDataTypeIdUnknown       StatusCode = 0x80110000
	StatusBadCertificateInvalid      StatusCode = 0x80120000
	StatusBadSecurityChecksFailed    StatusCode = 0x80130000
	StatusBadSecureChannelIdInvalid  StatusCode = 0x80220000
	StatusBadNodeIdInvalid           StatusCode = 0x80330000
	StatusBadNodeIdUnknown           StatusCode = 0x80340000
	StatusBadAttributeIdInvalid      StatusCode = 0x80350000
	StatusBadIndexRangeInvalid       StatusCode = 0x80360000
	StatusBadOutOfRange              StatusCode = 0x803C0000
	StatusBadNotSupported            StatusCode = 0x803D0000
	StatusBadNotImplemented          StatusCode = 0x80400000
	StatusBadTypeMismatch            StatusCode = 0x80740000
	StatusBadTcpServerTooBusy        StatusCode = 0x807D0000
	StatusBadTcpMessageTypeInvalid   StatusCode = 0x807E0000
	StatusBadTcpSecureChannelUnknown StatusCode = 0x807F0000
	StatusBadTcpMessageTooLarge      StatusCode = 0x80800000
	StatusBadTcpNotEnoughResources   StatusCode = 0x80810000
	StatusBadTcpInternalError        StatusCode = 0x80820000
	StatusBadTcpEndpointUrlInvalid   StatusCode = 0x80830000
	StatusBadRequestInterrupted      StatusCode = 0x80840000
	StatusBadSecureChannelClosed     StatusCode = 0x80860000
	StatusBadInvalidArgument         StatusCode = 0x80AB0000
	StatusBadInvalidState            StatusCode = 0x80AF0000
	StatusBadEndOfStream             StatusCode = 0x80B00000
	StatusBadSyntaxError             StatusCode = 0x80B60000
	StatusBadRequestTooLarge         StatusCode = 0x80B80000
	StatusBadResponseTooLarge        StatusCode = 0x80B90000

	StatusBadProtocolVersionUnsupported StatusCode = 0x80BE0000

	StatusUncertainLastUsableValue StatusCode = 0x40900000
	StatusGoodClamped              StatusCode = 0x00300000
)

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

// statusCodeMap maps status codes to their info.
var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                          {"Good", "The operation completed successfully"},
	StatusUncertain:                     {"Uncertain", "The operation completed however its outputs may not be usable"},
	StatusBad:                           {"Bad", "The operation failed"},
	StatusBadUnexpectedError:            {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:              {"BadInternalError", "An internal error occurred"},
	StatusBadOutOfMemory:                {"BadOutOfMemory", "Not enough memory to complete the operation"},
	StatusBadResourceUnavailable:        {"BadResourceUnavailable", "An operating system resource is not available"},
	StatusBadCommunicationError:         {"BadCommunicationError", "A low level communication error occurred"},
	StatusBadEncodingError:              {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:              {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadEncodingLimitsExceeded:     {"BadEncodingLimitsExceeded", "The message encoding/decoding limits have been exceeded"},
	StatusBadTimeout:                    {"BadTimeout", "The operation timed out"},
	StatusBadServiceUnsupported:         {"BadServiceUnsupported", "The server does not support the requested service"},
	StatusBadServerNotConnected:         {"BadServerNotConnected", "The operation could not complete because the client is not connected to the server"},
	StatusBadNothingToDo:                {"BadNothingToDo", "There was nothing to do because the client passed a list of operations with no elements"},
	StatusBadTooManyOperations:          {"BadTooManyOperations", "The request could not be processed because it specified too many operations"},
	StatusBadDataTypeIdUnknown:          {"BadDataTypeIdUnknown", "The extension object cannot be decoded because the data type is not known"},
	StatusBadCertificateInvalid:         {"BadCertificateInvalid", "The certificate provided as a parameter is not valid"},
	StatusBadSecurityChecksFailed:       {"BadSecurityChecksFailed", "An error occurred verifying security"},
	StatusBadSecureChannelIdInvalid:     {"BadSecureChannelIdInvalid", "The specified secure channel is no longer valid"},
	StatusBadNodeIdInvalid:              {"BadNodeIdInvalid", "The node ID format is not valid"},
	StatusBadNodeIdUnknown:              {"BadNodeIdUnknown", "The node ID refers to a node that does not exist"},
	StatusBadAttributeIdInvalid:         {"BadAttributeIdInvalid", "The attribute is not supported for the specified Node"},
	StatusBadIndexRangeInvalid:          {"BadIndexRangeInvalid", "The syntax of the index range parameter is invalid"},
	StatusBadOutOfRange:                 {"BadOutOfRange", "The value was out of range"},
	StatusBadNotSupported:               {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotImplemented:             {"BadNotImplemented", "Requested operation is not implemented"},
	StatusBadTypeMismatch:               {"BadTypeMismatch", "The value provided does not match the expected data type"},
	StatusBadTcpServerTooBusy:           {"BadTcpServerTooBusy", "The server cannot process the request because it is too busy"},
	StatusBadTcpMessageTypeInvalid:      {"BadTcpMessageTypeInvalid", "The type of the message specified in the header invalid"},
	StatusBadTcpSecureChannelUnknown:    {"BadTcpSecureChannelUnknown", "The SecureChannelId and/or TokenId are not currently in use"},
	StatusBadTcpMessageTooLarge:         {"BadTcpMessageTooLarge", "The size of the message chunk specified in the header is too large"},
	StatusBadTcpNotEnoughResources:      {"BadTcpNotEnoughResources", "There are not enough resources to process the request"},
	StatusBadTcpInternalError:           {"BadTcpInternalError", "An internal error occurred"},
	StatusBadTcpEndpointUrlInvalid:      {"BadTcpEndpointUrlInvalid", "The server does not recognize the QueryString specified"},
	StatusBadRequestInterrupted:         {"BadRequestInterrupted", "The request could not be sent because of a network interruption"},
	StatusBadSecureChannelClosed:        {"BadSecureChannelClosed", "The secure channel has been closed"},
	StatusBadInvalidArgument:            {"BadInvalidArgument", "One or more arguments are invalid"},
	StatusBadInvalidState:               {"BadInvalidState", "The operation cannot be completed because the object is closed or in an invalid state"},
	StatusBadEndOfStream:                {"BadEndOfStream", "Cannot move beyond end of the stream"},
	StatusBadSyntaxError:                {"BadSyntaxError", "A value had an invalid syntax"},
	StatusBadRequestTooLarge:            {"BadRequestTooLarge", "The request message size exceeds limits"},
	StatusBadResponseTooLarge:           {"BadResponseTooLarge", "The response message size exceeds limits"},
	StatusBadProtocolVersionUnsupported: {"BadProtocolVersionUnsupported", "The applications do not have compatible protocol versions"},
	StatusUncertainLastUsableValue:      {"UncertainLastUsableValue", "Whatever was updating this value has stopped doing so"},
	StatusGoodClamped:                   {"GoodClamped", "The value written was accepted but was clamped"},
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

// Codec errors. Every failure returned by an Encoder or Decoder is a
// *CodecError wrapping one of these.
var (
	// ErrTruncated indicates the buffer ended before the value did.
	ErrTruncated = errors.New("uacodec: unexpected end of data")

	// ErrInvalidLength indicates a negative length other than the null marker.
	ErrInvalidLength = errors.New("uacodec: invalid length")

	// ErrInvalidEncoding indicates an unknown discriminator, flag or mask bit.
	ErrInvalidEncoding = errors.New("uacodec: invalid encoding")

	// ErrInvalidValue indicates a value that cannot be represented on the wire.
	ErrInvalidValue = errors.New("uacodec: invalid value")

	// ErrTypeMismatch indicates a Go value that does not match its declared builtin type.
	ErrTypeMismatch = errors.New("uacodec: type mismatch")

	// ErrDimensionMismatch indicates array dimensions that do not match the element count.
	ErrDimensionMismatch = errors.New("uacodec: array dimensions do not match element count")

	// ErrDepthExceeded indicates nesting deeper than the configured recursion limit.
	ErrDepthExceeded = errors.New("uacodec: max recursion depth exceeded")

	// ErrLimitExceeded indicates an array or string longer than the configured limit.
	ErrLimitExceeded = errors.New("uacodec: encoding limit exceeded")

	// ErrUnregisteredType indicates a structured value with no registered codec.
	ErrUnregisteredType = errors.New("uacodec: unregistered structure type")

	// ErrCodecConflict indicates a registration that clashes with an existing codec.
	ErrCodecConflict = errors.New("uacodec: conflicting codec registration")

	// ErrPoolClosed indicates the encoder pool was closed.
	ErrPoolClosed = errors.New("uacodec: encoder pool closed")
)

// Codec operations reported in CodecError.Op.
const (
	OpEncode = "encode"
	OpDecode = "decode"
)

// CodecError describes a failed encode or decode.
type CodecError struct {
	Op         string
	Field      string
	Offset     int // byte offset in binary mode, -1 in XML mode
	StatusCode StatusCode
	Err        error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	where := e.Field
	if where == "" {
		where = "value"
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("uacodec: %s %s at offset %d: %v (%s)", e.Op, where, e.Offset, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("uacodec: %s %s: %v (%s)", e.Op, where, e.Err, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *CodecError) Is(target error) bool {
	t, ok := target.(*CodecError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// newCodecError classifies err for op and attaches the field context.
func newCodecError(op, field string, offset int, err error) *CodecError {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce
	}
	sc := StatusBadDecodingError
	if op == OpEncode {
		sc = StatusBadEncodingError
	}
	switch {
	case errors.Is(err, ErrDepthExceeded), errors.Is(err, ErrLimitExceeded):
		sc = StatusBadEncodingLimitsExceeded
	case op == OpEncode && errors.Is(err, ErrUnregisteredType):
		sc = StatusBadDataTypeIdUnknown
	}
	return &CodecError{Op: op, Field: field, Offset: offset, StatusCode: sc, Err: err}
}

// IsStatusCode checks if an error carries a specific status code.
func IsStatusCode(err error, code StatusCode) bool {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.StatusCode == code
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc == code
	}
	return false
}

// IsDecodingError checks if the error was raised while decoding.
func IsDecodingError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) && ce.Op == OpDecode
}

// IsEncodingError checks if the error was raised while encoding.
func IsEncodingError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce) && ce.Op == OpEncode
}

// IsLimitError checks if the error is a recursion or length limit violation.
func IsLimitError(err error) bool {
	return errors.Is(err, ErrDepthExceeded) || errors.Is(err, ErrLimitExceeded)
}
