package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opslock/kernel/pkg/contracts"
)

// LoadFile reads an AuthorizationPolicy document from a JSON file at path
// (spec.md §6's POLICY_FILE environment variable).
func LoadFile(path string) (contracts.AuthorizationPolicy, error) {
	var pol contracts.AuthorizationPolicy

	raw, err := os.ReadFile(path)
	if err != nil {
		return pol, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &pol); err != nil {
		return pol, fmt.Errorf("policy: parsing %s: %w", path, err)
	}
	return pol, nil
}
