// Package attr provides the attribute type system: typed field descriptors
// owned by a model or cluster schema.
//
// Each concrete kind (String, Number, Boolean, Date, ObjectID, HasOne,
// HasMany, NestOne, NestMany, PolyOne, PolyMany, Polymorphic) fixes its
// ValueType at construction and never changes it. Kinds are composed from a
// common base plus capability traits (see package trait); the capabilities a
// kind carries are exposed both as a flat trait.Set and as Go interfaces
// (Relational, Polymorphic, Nesting, Associative) so callers use interface
// tests instead of knowing the concrete kind.
//
// LIFECYCLE:
//
//	NewAttribute → ValidateSelf(catalog) → ProcessOptions(catalog) → use
//
// ValidateSelf runs once when the owning schema is finalized and rejects bad
// configuration. ProcessOptions runs once after all entities are known and
// caches resolved references (target models, embedded clusters). After that
// an Attribute is read-only and safe for concurrent use.
//
// RECORDS:
//
// Install contributes typed property accessors over a record's flattened
// backing Bag. The Bag is the single authoritative representation; nested
// and polymorphic reads build views over the same maps, so a write through a
// nested view is a write to the backing value.
package attr
