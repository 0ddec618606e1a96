package mutlog

// msgpack serialization of Entry in the form produced by the msgp code
// generator for the struct tags above.

import (
	"github.com/tinylib/msgp/msgp"
)

// MarshalMsg implements msgp.Marshaler
func (z *Entry) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 6)
	o = msgp.AppendString(o, "type")
	o = msgp.AppendUint16(o, uint16(z.Type))
	o = msgp.AppendString(o, "session")
	o = msgp.AppendString(o, z.Session)
	o = msgp.AppendString(o, "time")
	o = msgp.AppendInt64(o, z.Time)
	o = msgp.AppendString(o, "master")
	o = msgp.AppendUint64(o, z.Master)
	o = msgp.AppendString(o, "slave")
	o = msgp.AppendUint64(o, z.Slave)
	o = msgp.AppendString(o, "loc")
	o = msgp.AppendArrayHeader(o, 3)
	for za0001 := range z.Location {
		o = msgp.AppendInt32(o, z.Location[za0001])
	}
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *Entry) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	_ = field
	var zb0001 uint32
	zb0001, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	for zb0001 > 0 {
		zb0001--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "type":
			{
				var zb0002 uint16
				zb0002, bts, err = msgp.ReadUint16Bytes(bts)
				if err != nil {
					return
				}
				z.Type = EntryType(zb0002)
			}
		case "session":
			z.Session, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				return
			}
		case "time":
			z.Time, bts, err = msgp.ReadInt64Bytes(bts)
			if err != nil {
				return
			}
		case "master":
			z.Master, bts, err = msgp.ReadUint64Bytes(bts)
			if err != nil {
				return
			}
		case "slave":
			z.Slave, bts, err = msgp.ReadUint64Bytes(bts)
			if err != nil {
				return
			}
		case "loc":
			var zb0003 uint32
			zb0003, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return
			}
			if zb0003 != uint32(3) {
				err = msgp.ArrayError{Wanted: uint32(3), Got: zb0003}
				return
			}
			for za0001 := range z.Location {
				z.Location[za0001], bts, err = msgp.ReadInt32Bytes(bts)
				if err != nil {
					return
				}
			}
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				return
			}
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *Entry) Msgsize() (s int) {
	s = 1 + 5 + msgp.Uint16Size + 8 + msgp.StringPrefixSize + len(z.Session) + 5 + msgp.Int64Size +
		7 + msgp.Uint64Size + 6 + msgp.Uint64Size + 4 + msgp.ArrayHeaderSize + (3 * (msgp.Int32Size))
	return
}
