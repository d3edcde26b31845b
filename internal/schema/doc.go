// Package schema holds the read-only Schema Graph: entity types, transfer
// objects, attributes, relations, measures and enumerations.
//
// Descriptors live in an arena and reference each other by TypeID and
// RelationID. Inheritance closures (ancestors, subtypes, flattened members,
// incoming relations) are computed once by Builder.Build.
package schema
