// Package element gives snapshot nodes a content-derived identity and picks,
// scores and locates the nodes an agent can act on.
package element

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

const (
	// EIDLength is the number of hex characters of an eid.
	EIDLength = 16
	// ReadablePrefix marks eids of readable nodes.
	ReadablePrefix = "rd-"
	readableDigest = 10
)

// EID returns the identifier of node within layer: the truncated sha256 of
// the canonical JSON array [kind, label, layer]. Nodes that agree on all
// three share an eid; no positional tie-breaking is applied.
func EID(node snapshot.ReadableNode, layer snapshot.Layer) string {
	return digest(node.Kind, node.Label, layer)[:EIDLength]
}

// ReadableEID is the short, prefixed variant used for readable content.
func ReadableEID(node snapshot.ReadableNode, layer snapshot.Layer) string {
	return ReadablePrefix + digest(node.Kind, node.Label, layer)[:readableDigest]
}

// NodeEID picks ReadableEID for readable nodes and EID for the others,
// using the layer derived from the node's region.
func NodeEID(node snapshot.ReadableNode) string {
	if snapshot.IsReadableNode(node) {
		return ReadableEID(node, node.Layer())
	}
	return EID(node, node.Layer())
}

func digest(kind snapshot.NodeKind, label string, layer snapshot.Layer) string {
	// Marshalling a []string cannot fail.
	canon, _ := json.Marshal([]string{string(kind), label, string(layer)})
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// FindByEID returns the first node of snap whose eid is eid. Eids produced
// by both EID and ReadableEID are accepted.
func FindByEID(snap *snapshot.Snapshot, eid string) (snapshot.ReadableNode, bool) {
	if snap == nil || eid == "" {
		return snapshot.ReadableNode{}, false
	}
	for _, n := range snap.Nodes {
		layer := n.Layer()
		if EID(n, layer) == eid || ReadableEID(n, layer) == eid {
			return n, true
		}
	}
	return snapshot.ReadableNode{}, false
}

// FindByLabelKind returns the first node of snap with the given label and
// kind.
func FindByLabelKind(snap *snapshot.Snapshot, label string, kind snapshot.NodeKind) (snapshot.ReadableNode, bool) {
	if snap == nil {
		return snapshot.ReadableNode{}, false
	}
	for _, n := range snap.Nodes {
		if n.Label == label && n.Kind == kind {
			return n, true
		}
	}
	return snapshot.ReadableNode{}, false
}
