// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization used to derive stable hashes over receipts, evidence, and
// proof chain steps.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/opslock/kernel/pkg/contracts"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Map keys are sorted lexicographically by UTF-8 bytes and HTML escaping is
// disabled. The three kernel types that flow through signing and hashing
// most often — AuthorizationEvidence, a ProofStep, and a ProofStep slice —
// are canonicalized by walking their known fields directly rather than by
// round-tripping through encoding/json, so their field order and number
// formatting never depend on map-iteration order or float reformatting.
// Everything else falls back to a generic tree built from its JSON form.
func JCS(v interface{}) ([]byte, error) {
	node, err := buildNode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	node.writeTo(&buf)
	return buf.Bytes(), nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical JSON
// representation of v.
func Hash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String returns the canonical JSON form as a string.
func String(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// node is one value in the canonical tree. Building the tree (buildNode) and
// rendering it (writeTo) are separate passes so the ordering decision for
// objects happens once, up front, rather than being re-derived every time a
// nested value is serialized.
type node interface {
	writeTo(buf *bytes.Buffer)
}

type nullNode struct{}

func (nullNode) writeTo(buf *bytes.Buffer) { buf.WriteString("null") }

type boolNode bool

func (b boolNode) writeTo(buf *bytes.Buffer) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// rawNumber carries an already-canonical numeric literal, either decoded
// from JSON via json.Number or formatted directly from a Go numeric field.
type rawNumber string

func (n rawNumber) writeTo(buf *bytes.Buffer) { buf.WriteString(string(n)) }

type stringNode string

func (s stringNode) writeTo(buf *bytes.Buffer) { writeJSONString(buf, string(s)) }

type arrayNode []node

func (a arrayNode) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		elem.writeTo(buf)
	}
	buf.WriteByte(']')
}

// member is one key/value pair awaiting sort, used to build an objectNode.
type member struct {
	key string
	val node
}

// objectNode holds its members pre-sorted by key so writeTo never has to
// reason about ordering.
type objectNode []member

func newObjectNode(members []member) objectNode {
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })
	return objectNode(members)
}

func (o objectNode) writeTo(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, m.key)
		buf.WriteByte(':')
		m.val.writeTo(buf)
	}
	buf.WriteByte('}')
}

// writeJSONString writes s as a JSON string literal using only the escapes
// RFC 8785 requires (quote, backslash, and control characters); everything
// else, including non-ASCII runes, is copied through verbatim so the output
// never carries the \uXXXX escaping encoding/json's HTML-safe mode would add
// for '<', '>', and '&'.
func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// buildNode dispatches to a direct field-walk for the kernel's own
// frequently-hashed types and falls back to the generic JSON-shaped walk
// for everything else (maps, slices of arbitrary payloads, primitives).
func buildNode(v interface{}) (node, error) {
	switch t := v.(type) {
	case nil:
		return nullNode{}, nil
	case *contracts.AuthorizationEvidence:
		return evidenceNode(t), nil
	case contracts.AuthorizationEvidence:
		return evidenceNode(&t), nil
	case contracts.ProofStep:
		return proofStepNode(t), nil
	case []contracts.ProofStep:
		elems := make(arrayNode, len(t))
		for i, step := range t {
			elems[i] = proofStepNode(step)
		}
		return elems, nil
	default:
		return buildGenericNode(v)
	}
}

// evidenceNode walks AuthorizationEvidence's fields directly so its
// Approvers slice and Checks map hash the same way regardless of whether
// the caller passed a pointer or a value, without a json.Marshal round trip.
func evidenceNode(e *contracts.AuthorizationEvidence) node {
	if e == nil {
		return nullNode{}
	}
	members := []member{
		{"checked_at", stringNode(e.CheckedAt.UTC().Format(time.RFC3339))},
		{"policy_id", stringNode(e.PolicyID)},
		{"decision", stringNode(string(e.Decision))},
	}
	if e.Reason != "" {
		members = append(members, member{"reason", stringNode(e.Reason)})
	}
	if len(e.Approvers) > 0 {
		approvers := make(arrayNode, len(e.Approvers))
		for i, a := range e.Approvers {
			approvers[i] = stringNode(a)
		}
		members = append(members, member{"approvers", approvers})
	}
	if len(e.Checks) > 0 {
		checks := make([]member, 0, len(e.Checks))
		for k, v := range e.Checks {
			checks = append(checks, member{k, boolNode(v)})
		}
		members = append(members, member{"checks", newObjectNode(checks)})
	}
	return newObjectNode(members)
}

// proofStepNode walks ProofStep's fields directly, matching the field set
// contracts.ProofStep.SigningPayload attests to plus the fields that travel
// alongside it once sealed into a chain.
func proofStepNode(s contracts.ProofStep) node {
	return newObjectNode([]member{
		{"step_id", stringNode(s.StepID)},
		{"timestamp", stringNode(s.Timestamp.UTC().Format(time.RFC3339))},
		{"actor", stringNode(s.Actor)},
		{"description", stringNode(s.Description)},
		{"input_hash", stringNode(s.InputHash)},
		{"output_hash", stringNode(s.OutputHash)},
		{"signature", stringNode(s.Signature)},
	})
}

// buildGenericNode handles everything that isn't one of the kernel's own
// hashed types: arbitrary payload maps, caller-supplied input/output values
// proofchain.AddStep hashes, and receipt.SigningPayload()'s plain map. It
// marshals once to respect json tags, decodes with UseNumber so integers and
// decimals already in the payload are never reformatted through float64,
// then walks the result into the same node tree the fast paths above build
// directly.
func buildGenericNode(v interface{}) (node, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	return genericToNode(generic)
}

func genericToNode(v interface{}) (node, error) {
	switch t := v.(type) {
	case nil:
		return nullNode{}, nil
	case bool:
		return boolNode(t), nil
	case json.Number:
		return rawNumber(t.String()), nil
	case string:
		return stringNode(t), nil
	case []interface{}:
		elems := make(arrayNode, len(t))
		for i, elem := range t {
			n, err := genericToNode(elem)
			if err != nil {
				return nil, err
			}
			elems[i] = n
		}
		return elems, nil
	case map[string]interface{}:
		members := make([]member, 0, len(t))
		for k, val := range t {
			n, err := genericToNode(val)
			if err != nil {
				return nil, err
			}
			members = append(members, member{k, n})
		}
		return newObjectNode(members), nil
	default:
		return nil, fmt.Errorf("canonicalize: unsupported decoded type %T", v)
	}
}
