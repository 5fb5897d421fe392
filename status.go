package jack

import (
	"fmt"
	"strings"
)

// Status is the set of condition flags returned by the server from
// operations that report structured failures (open and disconnect).
type Status uint32

// Status flags, bit-compatible with jack_status_t.
const (
	Failure       Status = 0x01
	InvalidOption Status = 0x02
	NameNotUnique Status = 0x04
	ServerStarted Status = 0x08
	ServerFailed  Status = 0x10
	ServerError   Status = 0x20
	NoSuchClient  Status = 0x40
	LoadFailure   Status = 0x80
	InitFailure   Status = 0x100
	ShmFailure    Status = 0x200
	VersionError  Status = 0x400
	BackendError  Status = 0x800
	ClientZombie  Status = 0x1000

	// allStatus is the union of every known status flag.
	allStatus = Failure | InvalidOption | NameNotUnique | ServerStarted |
		ServerFailed | ServerError | NoSuchClient | LoadFailure | InitFailure |
		ShmFailure | VersionError | BackendError | ClientZombie
)

var statusNames = []struct {
	flag Status
	name string
}{
	{Failure, "Failure"},
	{InvalidOption, "InvalidOption"},
	{NameNotUnique, "NameNotUnique"},
	{ServerStarted, "ServerStarted"},
	{ServerFailed, "ServerFailed"},
	{ServerError, "ServerError"},
	{NoSuchClient, "NoSuchClient"},
	{LoadFailure, "LoadFailure"},
	{InitFailure, "InitFailure"},
	{ShmFailure, "ShmFailure"},
	{VersionError, "VersionError"},
	{BackendError, "BackendError"},
	{ClientZombie, "ClientZombie"},
}

// StatusFromBits converts a raw server bitmask to a Status. ok is false if
// bits contains flags this package does not know about.
func StatusFromBits(bits uint32) (Status, bool) {
	s := Status(bits)
	return s, s&^allStatus == 0
}

// DecodeStatus converts a raw server bitmask to a Status.
//
// A bitmask with unknown flags is a contract violation by the server and
// causes a panic.
func DecodeStatus(bits uint32) Status {
	s, ok := StatusFromBits(bits)
	if !ok {
		panic(fmt.Sprintf("jack: server returned unknown status bits 0x%x", bits&^uint32(allStatus)))
	}
	return s
}

// Bits returns the raw bitmask.
func (s Status) Bits() uint32 { return uint32(s) }

// IsEmpty reports whether no flag is set.
func (s Status) IsEmpty() bool { return s == 0 }

// Contains reports whether every flag in other is set in s.
func (s Status) Contains(other Status) bool { return s&other == other }

// Intersects reports whether s and other share at least one flag.
func (s Status) Intersects(other Status) bool { return s&other != 0 }

// Union returns the flags set in either s or other.
func (s Status) Union(other Status) Status { return s | other }

// Intersect returns the flags set in both s and other.
func (s Status) Intersect(other Status) Status { return s & other }

// Difference returns the flags set in s but not in other.
func (s Status) Difference(other Status) Status { return s &^ other }

func (s Status) String() string {
	if s == 0 {
		return "Status()"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := s &^ allStatus; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return "Status(" + strings.Join(parts, "|") + ")"
}

// Options controls the behavior of Open.
type Options uint32

// Open options, bit-compatible with jack_options_t.
const (
	NullOption    Options = 0x00
	NoStartServer Options = 0x01
	UseExactName  Options = 0x02
	ServerName    Options = 0x04
	LoadName      Options = 0x08
	LoadInit      Options = 0x10
	SessionID     Options = 0x20

	allOptions = NoStartServer | UseExactName | ServerName | LoadName | LoadInit | SessionID
)

var optionNames = []struct {
	flag Options
	name string
}{
	{NoStartServer, "NoStartServer"},
	{UseExactName, "UseExactName"},
	{ServerName, "ServerName"},
	{LoadName, "LoadName"},
	{LoadInit, "LoadInit"},
	{SessionID, "SessionID"},
}

// OptionsFromBits converts a raw bitmask to Options. ok is false if bits
// contains unknown flags.
func OptionsFromBits(bits uint32) (Options, bool) {
	o := Options(bits)
	return o, o&^allOptions == 0
}

// DecodeOptions converts a raw bitmask to Options and panics on unknown
// flags.
func DecodeOptions(bits uint32) Options {
	o, ok := OptionsFromBits(bits)
	if !ok {
		panic(fmt.Sprintf("jack: unknown option bits 0x%x", bits&^uint32(allOptions)))
	}
	return o
}

// ParseOptions resolves option names (as printed by String, case
// insensitive) into an Options set.
func ParseOptions(names []string) (Options, error) {
	var o Options
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		found := false
		for _, n := range optionNames {
			if strings.EqualFold(n.name, name) {
				o |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrUnknownOption, name)
		}
	}
	return o, nil
}

// Bits returns the raw bitmask.
func (o Options) Bits() uint32 { return uint32(o) }

// Contains reports whether every flag in other is set in o.
func (o Options) Contains(other Options) bool { return o&other == other }

// Union returns the flags set in either o or other.
func (o Options) Union(other Options) Options { return o | other }

// Intersect returns the flags set in both o and other.
func (o Options) Intersect(other Options) Options { return o & other }

// Difference returns the flags set in o but not in other.
func (o Options) Difference(other Options) Options { return o &^ other }

func (o Options) String() string {
	if o == 0 {
		return "Options()"
	}
	var parts []string
	for _, n := range optionNames {
		if o&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := o &^ allOptions; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return "Options(" + strings.Join(parts, "|") + ")"
}

// PortFlags describes the direction and properties of a port at
// registration time.
type PortFlags uint32

// Port flags, bit-compatible with JackPortFlags.
const (
	PortIsInput    PortFlags = 0x01
	PortIsOutput   PortFlags = 0x02
	PortIsPhysical PortFlags = 0x04
	PortCanMonitor PortFlags = 0x08
	PortIsTerminal PortFlags = 0x10
)
