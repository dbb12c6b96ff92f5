// Package ir provides the canonical definition types shared by every layer of
// simloom: component and system definitions, property values, structured
// error records and the error kinds reported across the registry, world,
// gateway and engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Definitions are values; callers receive copies (Clone) so registered
//     schemas cannot be mutated behind the registry's back
//   - All JSON tags use snake_case
//   - Hashes use canonical JSON (RFC 8785 ordering, NFC strings) with domain
//     separation
package ir
