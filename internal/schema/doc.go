// Package schema turns loosely typed entity declarations into a validated,
// cross-referenced Registry of attr.Entity values.
//
// An attribute declaration takes one of four shapes:
//
//	attr.KindString                  // bare kind reference
//	"String"                         // bare kind name
//	{type: "HasOne", model: "User"}  // object with type and options
//	{hasOne: "User"}                 // custom kind alias, plus options
//
// Entity files (YAML or CUE) group declarations under models and clusters:
//
//	models:
//	  User:
//	    name: String
//	    posts: {hasMany: Post, via: author}
//	clusters:
//	  Address:
//	    city: String
//
// An entity whose value has an "attributes" key is read in structured form,
// which also accepts primaryKey.
//
// Build runs in stages: construct every attribute, ValidateSelf every
// attribute, ProcessOptions every attribute, then check adapter support.
// Each stage reports all of its failures at once as an odmerr.Composite, and
// any failure aborts the build.
package schema
