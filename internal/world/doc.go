// Package world holds entities, component columns and relations.
//
// A World owns no schemas of its own. Component layouts are looked up through
// the Schemas interface (normally the registry) the first time a component is
// attached, after which the column keeps its definition until dropped.
//
// A World is not safe for concurrent use. All mutation is serialized by the
// caller; the engine wraps every tick in a Txn so a faulting tick can be
// undone in full.
package world
