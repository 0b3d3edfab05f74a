package media

// Entity is a media-controller entity as reported by MEDIA_IOC_ENUM_ENTITIES.
type Entity struct {
	ID    uint32
	Name  string
	Type  uint32
	Flags uint32
	Pads  uint16
	Links uint16
	Major uint32
	Minor uint32
}

// Pad identifies one pad of an entity.
type Pad struct {
	Entity uint32
	Index  uint16
	Flags  uint32
}

// IsSource reports whether data leaves the entity through this pad.
func (p Pad) IsSource() bool { return p.Flags&PadFlSource != 0 }

// IsSink reports whether data enters the entity through this pad.
func (p Pad) IsSink() bool { return p.Flags&PadFlSink != 0 }

// Link is a directed pad-to-pad connection.
type Link struct {
	Source Pad
	Sink   Pad
	Flags  uint32
}

// Enabled reports whether the link currently carries data.
func (l Link) Enabled() bool { return l.Flags&LinkFlEnabled != 0 }

// Immutable reports whether the link state is fixed by the driver.
func (l Link) Immutable() bool { return l.Flags&LinkFlImmutable != 0 }

// WithEnabled returns a copy of l with the enabled flag set or cleared.
func (l Link) WithEnabled(on bool) Link {
	if on {
		l.Flags |= LinkFlEnabled
	} else {
		l.Flags &^= LinkFlEnabled
	}
	return l
}

// Info describes the media device itself.
type Info struct {
	Driver        string
	Model         string
	Serial        string
	BusInfo       string
	MediaVersion  uint32
	HWRevision    uint32
	DriverVersion uint32
}

// Pad and link flags.
const (
	PadFlSink   uint32 = 1 << 0
	PadFlSource uint32 = 1 << 1

	LinkFlEnabled   uint32 = 1 << 0
	LinkFlImmutable uint32 = 1 << 1
	LinkFlDynamic   uint32 = 1 << 2
)

// EntIDFlagNext requests the entity following the given id.
const EntIDFlagNext uint32 = 1 << 31
