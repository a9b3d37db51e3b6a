// internal/status/constants.go
package status

// Receiver Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per receiver.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the receiver health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last error code (see Code* below).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the receiver has not been OK.
const SlotSecondsInError = 2

// SlotErrorMaskHi and SlotErrorMaskLo hold the last non-zero
// TRK_IRQ_ERROR mask, high word first.
const SlotErrorMaskHi = 3
const SlotErrorMaskLo = 4

// SlotChannels holds the number of running tracking channels.
const SlotChannels = 5

// SlotEphemerides holds the number of valid ephemeris table entries.
const SlotEphemerides = 6

// SlotLiveEnd is the last slot written incrementally (inclusive).
const SlotLiveEnd = SlotEphemerides

// ---- RESERVED RANGE ----

// Slots 7-10 are reserved for future use.
const SlotReservedStart = 7
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the receiver name.
// The name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for the name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy receiver.
const HealthOK uint16 = 1

// HealthError represents a transport or hardware error state.
const HealthError uint16 = 2

// HealthStale represents a missed liveness deadline.
const HealthStale uint16 = 3

// HealthDisabled represents a disabled receiver.
const HealthDisabled uint16 = 4

// ---- ERROR CODES ----

// CodeGeneric is used for transport errors that expose no code.
const CodeGeneric uint16 = 1

// CodeMissedUpdate means the NAP reported channels not serviced in time.
const CodeMissedUpdate uint16 = 0x100

// CodeOverdue means a watched thread stopped checking in.
const CodeOverdue uint16 = 0x101
