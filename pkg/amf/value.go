package amf

// Property is a single name/value pair of an AMF0 Object or EcmaArray.
// Field order is significant on the wire; strict clients depend on it, so
// values are kept in an ordered slice rather than a Go map.
type Property struct {
	Name  string
	Value any
}

// Object is the AMF0 "object" type: an ordered sequence of named
// properties terminated by the object-end marker.
type Object struct {
	Properties []Property
}

// NewObject builds an Object from the given properties, preserving order.
func NewObject(props ...Property) Object {
	return Object{Properties: props}
}

// Get returns the value of the first property with the given name.
func (o Object) Get(name string) (any, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// EcmaArray is the AMF0 "ecma array" type: like Object but prefixed on the
// wire with a 4-byte associative-count field.
type EcmaArray struct {
	Properties []Property
}

// NewEcmaArray builds an EcmaArray from the given properties, preserving order.
func NewEcmaArray(props ...Property) EcmaArray {
	return EcmaArray{Properties: props}
}

// Get returns the value of the first property with the given name.
func (a EcmaArray) Get(name string) (any, bool) {
	for _, p := range a.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}
