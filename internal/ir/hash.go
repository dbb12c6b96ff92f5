package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRegistry = "simloom/registry/v1"
	DomainLogic    = "simloom/logic/v1"
	DomainWorld    = "simloom/world/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RegistryHash computes the content hash of a registry's definitions.
//
// Runtime bookkeeping (last_error, run_count) is excluded: two registries
// holding the same schemas and logic hash identically regardless of how
// often their systems ran.
func RegistryHash(s RegistrySnapshot) (string, error) {
	defs := RegistrySnapshot{
		Components: s.Components,
		Systems:    make([]SystemDef, len(s.Systems)),
	}
	for i, sys := range s.Systems {
		sys.LastError = nil
		sys.RunCount = 0
		defs.Systems[i] = sys
	}
	if defs.Components == nil {
		defs.Components = []ComponentDef{}
	}

	canonical, err := MarshalCanonical(defs)
	if err != nil {
		return "", fmt.Errorf("RegistryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRegistry, canonical), nil
}

// LogicHash identifies a system's logic text, used to key compiled programs.
func LogicHash(logic string) string {
	return hashWithDomain(DomainLogic, []byte(logic))
}

// ContentHash hashes any JSON-encodable value under domain.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}
