// Copyright 2025 Arion Yau
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

package device

import (
	"fmt"
	"strings"
)

// Return is a status code reported by the device management library. The
// numeric values follow the vendor library.
type Return int

const (
	Success                      Return = 0
	ErrorUninitialized           Return = 1
	ErrorInvalidArgument         Return = 2
	ErrorNotSupported            Return = 3
	ErrorNoPermission            Return = 4
	ErrorAlreadyInitialized      Return = 5
	ErrorNotFound                Return = 6
	ErrorInsufficientSize        Return = 7
	ErrorInsufficientPower       Return = 8
	ErrorDriverNotLoaded         Return = 9
	ErrorTimeout                 Return = 10
	ErrorIRQIssue                Return = 11
	ErrorLibraryNotFound         Return = 12
	ErrorFunctionNotFound        Return = 13
	ErrorCorruptedInforom        Return = 14
	ErrorGPUIsLost               Return = 15
	ErrorResetRequired           Return = 16
	ErrorOperatingSystem         Return = 17
	ErrorLibRMVersionMismatch    Return = 18
	ErrorInUse                   Return = 19
	ErrorMemory                  Return = 20
	ErrorNoData                  Return = 21
	ErrorVGPUECCNotSupported     Return = 22
	ErrorInsufficientResources   Return = 23
	ErrorFreqNotSupported        Return = 24
	ErrorArgumentVersionMismatch Return = 25
	ErrorDeprecated              Return = 26
	ErrorNotReady                Return = 27
	ErrorGPUNotFound             Return = 28
	ErrorInvalidState            Return = 29
	ErrorUnknown                 Return = 999
)

type returnInfo struct {
	name        string
	description string
	recoverable bool
}

var returns = map[Return]returnInfo{
	Success:                      {"SUCCESS", "the operation was successful", false},
	ErrorUninitialized:           {"ERROR_UNINITIALIZED", "the library was not successfully initialized", false},
	ErrorInvalidArgument:         {"ERROR_INVALID_ARGUMENT", "a supplied argument is invalid", true},
	ErrorNotSupported:            {"ERROR_NOT_SUPPORTED", "the requested operation is not available on the target device", true},
	ErrorNoPermission:            {"ERROR_NO_PERMISSION", "the current user does not have permission for the operation", true},
	ErrorAlreadyInitialized:      {"ERROR_ALREADY_INITIALIZED", "the library was already initialized", false},
	ErrorNotFound:                {"ERROR_NOT_FOUND", "a query to find an object was unsuccessful", true},
	ErrorInsufficientSize:        {"ERROR_INSUFFICIENT_SIZE", "an input argument is not large enough", true},
	ErrorInsufficientPower:       {"ERROR_INSUFFICIENT_POWER", "a device's external power cables are not properly attached", true},
	ErrorDriverNotLoaded:         {"ERROR_DRIVER_NOT_LOADED", "the driver is not loaded", false},
	ErrorTimeout:                 {"ERROR_TIMEOUT", "the user provided timeout passed", false},
	ErrorIRQIssue:                {"ERROR_IRQ_ISSUE", "the kernel detected an interrupt issue with a GPU", false},
	ErrorLibraryNotFound:         {"ERROR_LIBRARY_NOT_FOUND", "the shared library could not be found or loaded", false},
	ErrorFunctionNotFound:        {"ERROR_FUNCTION_NOT_FOUND", "the local library does not implement the function", false},
	ErrorCorruptedInforom:        {"ERROR_CORRUPTED_INFOROM", "the infoROM is corrupted", false},
	ErrorGPUIsLost:               {"ERROR_GPU_IS_LOST", "the GPU has fallen off the bus or has otherwise become inaccessible", true},
	ErrorResetRequired:           {"ERROR_RESET_REQUIRED", "the GPU requires a reset before it can be used again", true},
	ErrorOperatingSystem:         {"ERROR_OPERATING_SYSTEM", "the GPU control device has been blocked by the operating system", true},
	ErrorLibRMVersionMismatch:    {"ERROR_LIB_RM_VERSION_MISMATCH", "the library and driver versions do not match", false},
	ErrorInUse:                   {"ERROR_IN_USE", "an operation cannot be performed because the GPU is currently in use", true},
	ErrorMemory:                  {"ERROR_MEMORY", "insufficient memory", true},
	ErrorNoData:                  {"ERROR_NO_DATA", "no data", true},
	ErrorVGPUECCNotSupported:     {"ERROR_VGPU_ECC_NOT_SUPPORTED", "the requested vGPU operation is not available because ECC is enabled", true},
	ErrorInsufficientResources:   {"ERROR_INSUFFICIENT_RESOURCES", "insufficient resources to perform the operation", true},
	ErrorFreqNotSupported:        {"ERROR_FREQ_NOT_SUPPORTED", "the requested frequency is not supported", true},
	ErrorArgumentVersionMismatch: {"ERROR_ARGUMENT_VERSION_MISMATCH", "the provided version is invalid or unsupported", true},
	ErrorDeprecated:              {"ERROR_DEPRECATED", "the requested functionality has been deprecated", false},
	ErrorNotReady:                {"ERROR_NOT_READY", "the system is not ready for the request", true},
	ErrorGPUNotFound:             {"ERROR_GPU_NOT_FOUND", "no GPUs were found", true},
	ErrorInvalidState:            {"ERROR_INVALID_STATE", "the resource is in an invalid state", true},
	ErrorUnknown:                 {"ERROR_UNKNOWN", "an internal driver error occurred", false},
}

// String returns the status name. Codes outside the known table render as
// ERROR_UNKNOWN.
func (r Return) String() string {
	if info, ok := returns[r]; ok {
		return info.name
	}
	return returns[ErrorUnknown].name
}

// Description is a short human-readable explanation of the status.
func (r Return) Description() string {
	if info, ok := returns[r]; ok {
		return info.description
	}
	return fmt.Sprintf("unrecognized status %d", int(r))
}

func (r Return) IsSuccess() bool {
	return r == Success
}

// IsRecoverable reports whether the status may be returned to a client while
// the daemon keeps serving.
func (r Return) IsRecoverable() bool {
	info, ok := returns[r]
	return ok && info.recoverable
}

// IsFatal is true for every status that is neither success nor in the
// recoverable set, including codes the table does not know.
func (r Return) IsFatal() bool {
	return !r.IsSuccess() && !r.IsRecoverable()
}

// ParseReturn resolves a status name, with or without the NVML_ prefix.
func ParseReturn(name string) (Return, bool) {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "NVML_")
	for code, info := range returns {
		if info.name == name {
			return code, true
		}
	}
	return 0, false
}
