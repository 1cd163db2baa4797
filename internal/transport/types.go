// Package transport implements the two concrete connection kinds the
// channel manager can create: a length-framed TCP connection and an
// opaque, session-name-addressed bus connection (§4.2).
package transport

// ModuleType identifies the logical purpose of a channel. It drives role
// assignment, bus session-type selection, and RTSP-engine routing.
type ModuleType int

// Module kinds, matching the OHOS ModuleType enum.
const (
	ModuleAuth ModuleType = iota
	ModuleRTSP
	ModuleRTCP
	ModuleVideo
	ModuleAudio
	ModuleRemoteControl
	ModuleStream
	ModuleUIFiles
	ModuleUIBytes
)

// String implements fmt.Stringer.
func (m ModuleType) String() string {
	switch m {
	case ModuleAuth:
		return "auth"
	case ModuleRTSP:
		return "rtsp"
	case ModuleRTCP:
		return "rtcp"
	case ModuleVideo:
		return "video"
	case ModuleAudio:
		return "audio"
	case ModuleRemoteControl:
		return "remote_control"
	case ModuleStream:
		return "stream"
	case ModuleUIFiles:
		return "ui_files"
	case ModuleUIBytes:
		return "ui_bytes"
	default:
		return "unknown"
	}
}

// LinkType identifies the transport carrying a channel.
type LinkType int

// Link kinds. LinkVTP is an open question (SPEC_FULL.md §9): the original
// aliases it to TCP and this port preserves that rather than inventing a
// UDP-backed transport nobody has specified.
const (
	LinkTCP LinkType = iota
	// LinkVTP is a reliable-UDP transport alias.
	// TODO: no UDP-backed implementation exists; this link currently
	// behaves exactly like LinkTCP, matching the original core.
	LinkVTP
	LinkSoftBus
)

// Role is which end of the session a connection belongs to.
type Role int

// Roles.
const (
	RoleSource Role = iota
	RoleSink
)

// DeviceType distinguishes platform families that need special-cased
// behavior (the dual-accept skip for HiCar peers).
type DeviceType int

// Device kinds referenced by the spec.
const (
	DeviceTypeGeneric DeviceType = iota
	DeviceTypeHiCar
)

// ConnectionSide says whether a connection should listen or actively
// connect, per the role/link table in SPEC_FULL.md §4.2.
type ConnectionSide int

// Sides.
const (
	SideListen ConnectionSide = iota
	SideConnect
)

// side implements the table:
//
//	link \ role   sink      source
//	VTP           server    client
//	TCP           client    server
//	bus           client    server
//
// VTP is aliased to TCP's row semantics-wise at the connection level (it
// reuses the TCP connection type) but keeps its own row here because the
// table itself distinguishes VTP from TCP.
func side(link LinkType, role Role) ConnectionSide {
	switch link {
	case LinkVTP:
		if role == RoleSink {
			return SideListen
		}
		return SideConnect
	case LinkTCP:
		if role == RoleSink {
			return SideConnect
		}
		return SideListen
	case LinkSoftBus:
		if role == RoleSink {
			return SideConnect
		}
		return SideListen
	default:
		return SideConnect
	}
}

// Side returns which side of the connection this endpoint plays, per the
// role assignment table.
func Side(link LinkType, role Role) ConnectionSide {
	return side(link, role)
}

// DeviceInfo identifies one endpoint of a channel.
type DeviceInfo struct {
	DeviceID   string
	IPAddress  string
	SessionID  int
	DeviceType DeviceType
}

// Request identifies one logical channel, per SPEC_FULL.md §3 "Channel
// request". It is the key used by the channel manager's connection map.
type Request struct {
	Module       ModuleType
	Link         LinkType
	Role         Role
	Local        DeviceInfo
	Remote       DeviceInfo
	LocalPort    int
	RemotePort   int
	IsReceiver   bool
	ConnectionID int
}

// Key returns a comparable value suitable for use as a map key, matching
// "at most one Connection per (module, request)" (SPEC_FULL.md §3).
func (r Request) Key() RequestKey {
	return RequestKey{
		Module:       r.Module,
		Link:         r.Link,
		RemoteDevice: r.Remote.DeviceID,
		RemotePort:   r.RemotePort,
	}
}

// RequestKey is the comparable projection of a Request used as a map key.
type RequestKey struct {
	Module       ModuleType
	Link         LinkType
	RemoteDevice string
	RemotePort   int
}
