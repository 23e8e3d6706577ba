package nalu

// Unit is a NAL unit. The first byte is the NAL header, the rest is the payload.
type Unit []byte

// NewUnit allocates a zeroed unit.
// If includingHeader is false, an additional byte is reserved for the header.
func NewUnit(size int, includingHeader bool) Unit {
	if !includingHeader {
		size++
	}
	return make(Unit, size)
}

// NewUnitFromBytes allocates a unit that contains a copy of b.
func NewUnitFromBytes(b []byte) Unit {
	u := make(Unit, len(b))
	copy(u, b)
	return u
}

// Len returns the size of the unit, header included.
func (u Unit) Len() int {
	return len(u)
}

// Bytes returns the raw content of the unit.
func (u Unit) Bytes() []byte {
	return u
}

// Header returns the NAL header.
func (u Unit) Header() Header {
	u.mustHaveHeader()
	return Header(u[0])
}

// ForbiddenBit returns the forbidden_zero_bit of the header.
func (u Unit) ForbiddenBit() bool {
	return u.Header().ForbiddenBit()
}

// NRI returns the nal_ref_idc of the header.
func (u Unit) NRI() uint8 {
	return u.Header().NRI()
}

// UnitType returns the type of the header.
func (u Unit) UnitType() uint8 {
	return u.Header().UnitType()
}

// SetForbiddenBit sets the forbidden_zero_bit of the header.
func (u Unit) SetForbiddenBit(isSet bool) {
	h := u.Header()
	h.SetForbiddenBit(isSet)
	u[0] = byte(h)
}

// SetNRI sets the nal_ref_idc of the header.
func (u Unit) SetNRI(nri uint8) {
	h := u.Header()
	h.SetNRI(nri)
	u[0] = byte(h)
}

// SetUnitType sets the type of the header.
func (u Unit) SetUnitType(typ uint8) {
	h := u.Header()
	h.SetUnitType(typ)
	u[0] = byte(h)
}

// Payload returns a copy of the bytes that follow the header.
func (u Unit) Payload() []byte {
	u.mustHaveHeader()
	ret := make([]byte, len(u)-1)
	copy(ret, u[1:])
	return ret
}

// SetPayload replaces the bytes that follow the header.
// The header is preserved.
func (u *Unit) SetPayload(payload []byte) {
	u.mustHaveHeader()
	n := make(Unit, 1+len(payload))
	n[0] = (*u)[0]
	copy(n[1:], payload)
	*u = n
}

func (u Unit) mustHaveHeader() {
	if len(u) < 1 {
		panic("nalu: unit has no header")
	}
}
