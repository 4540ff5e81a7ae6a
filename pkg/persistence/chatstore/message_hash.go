package chatstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// MessageContentHashAlgorithmV1 identifies the canonical hash material/version.
//
// The canonical material is JSON over role and content, both trimmed.
const MessageContentHashAlgorithmV1 = "sha256-canonical-json-v1"

type canonicalMessageMaterial struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CanonicalMessageMaterialJSON returns the canonical JSON bytes used for message hashing.
func CanonicalMessageMaterialJSON(role, content string) ([]byte, error) {
	return json.Marshal(canonicalMessageMaterial{
		Role:    strings.TrimSpace(role),
		Content: strings.TrimSpace(content),
	})
}

// ComputeMessageContentHash computes the lowercase-hex SHA-256 hash over canonical message material.
func ComputeMessageContentHash(role, content string) (string, error) {
	b, err := CanonicalMessageMaterialJSON(role, content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
