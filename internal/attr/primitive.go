package attr

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/value"
)

// Primitive is a String, Number or Boolean attribute.
type Primitive struct {
	*Base
}

func newPrimitive(b *Base) Attribute { return &Primitive{Base: b} }

// Date holds time.Time values. Its value type is object.
type Date struct {
	*Base
}

func newDate(b *Base) Attribute { return &Date{Base: b} }

// MatchesType accepts set time values.
func (d *Date) MatchesType(v any) bool {
	return value.IsDate(v)
}

// ValidateModelValue rejects values that are not times.
func (d *Date) ValidateModelValue(v any) error {
	if v != nil && !value.IsDate(v) {
		return d.fail(odmerr.CodeValidationDate, "expected a date, got %s", value.TypeOf(v)).With("value", value.Render(v))
	}
	return d.validateScalar(v)
}

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ObjectID holds a 24-character hex identifier or a backend object id.
type ObjectID struct {
	*Base
}

func newObjectID(b *Base) Attribute { return &ObjectID{Base: b} }

// MatchesType accepts strings and object ids.
func (o *ObjectID) MatchesType(v any) bool {
	switch v.(type) {
	case string, primitive.ObjectID:
		return true
	}
	return false
}

// ValidateModelValue rejects strings that are not 24 hex characters.
func (o *ObjectID) ValidateModelValue(v any) error {
	if s, ok := v.(string); ok && !objectIDPattern.MatchString(s) {
		return o.fail(odmerr.CodeValidationObjectID, "%q is not a 24 character hex id", s)
	}
	return o.validateScalar(v)
}

// ToNative converts hex strings (and arrays of them) to primitive.ObjectID.
// Strings that are not valid ids are left unchanged.
func (o *ObjectID) ToNative(v any) (any, error) {
	if arr, ok := value.AsArray(v); ok {
		out := make([]any, len(arr))
		for i, el := range arr {
			n, err := o.ToNative(el)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	s, ok := v.(string)
	if !ok || !objectIDPattern.MatchString(s) {
		return v, nil
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, odmerr.Wrap(odmerr.CodeValidationObjectID, err, "invalid object id %q", s).On(o.model, o.name)
	}
	return id, nil
}

// NewObjectID returns a fresh object id in hex form.
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}
