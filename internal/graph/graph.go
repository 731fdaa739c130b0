// Package graph maintains the entity-relationship graph for link analysis.
//
// Nodes are typed identifiers (user, device, ip); edges are undirected and
// mean "co-occurred in a transaction". Every scored transaction adds the
// user-device and user-ip edges. The graph is append-only: nodes and edges
// are never removed, and the fraud flag is monotonic: once set it is never
// cleared here. Growth is observable via Stats; bounding or sharding a
// long-running deployment is the operator's concern.
package graph

import (
	"fmt"
	"sync"
)

// NodeType tags a graph node by entity kind.
type NodeType string

const (
	NodeUser   NodeType = "user"
	NodeDevice NodeType = "device"
	NodeIP     NodeType = "ip"
)

const (
	// DefaultFanoutThreshold is the number of distinct users on one device
	// above which the synthetic-identity signal fires.
	DefaultFanoutThreshold = 3

	// maxHops bounds the fraud-link traversal.
	maxHops = 2

	// maxNeighborsExamined caps the neighbors walked per node so an
	// adversarially high-degree node cannot make NetworkRisk unbounded.
	maxNeighborsExamined = 1000
)

// Risk values returned by NetworkRisk.
const (
	RiskNone      = 0.0
	RiskFanout    = 0.8
	RiskFraudLink = 1.0
)

type node struct {
	typ       NodeType
	fraud     bool
	neighbors map[string]struct{}
}

// Graph is a mutex-guarded in-memory entity graph. A single lock covers
// mutation and traversal so a traversal never observes half-inserted edges.
type Graph struct {
	mu              sync.RWMutex
	nodes           map[string]*node
	edges           int
	fraudCount      int
	fanoutThreshold int
}

// New creates an empty entity graph.
func New() *Graph {
	return &Graph{
		nodes:           make(map[string]*node),
		fanoutThreshold: DefaultFanoutThreshold,
	}
}

// WithFanoutThreshold overrides the synthetic-identity fan-out threshold.
func (g *Graph) WithFanoutThreshold(n int) *Graph {
	g.mu.Lock()
	g.fanoutThreshold = n
	g.mu.Unlock()
	return g
}

// RecordTransaction ensures the transaction's user, device, and IP nodes
// exist and connects user-device and user-ip. Idempotent: replaying the
// same transaction leaves the graph shape unchanged.
func (g *Graph) RecordTransaction(userID, deviceID, ipAddr string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensure(userID, NodeUser)
	g.ensure(deviceID, NodeDevice)
	g.ensure(ipAddr, NodeIP)

	g.addEdge(userID, deviceID)
	g.addEdge(userID, ipAddr)
}

// MarkFraud flags a node as confirmed fraud, creating it first if absent.
// Irreversible here; clearing fraud status is an administrative action
// outside this component's contract.
func (g *Graph) MarkFraud(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[nodeID]
	if !ok {
		n = &node{neighbors: make(map[string]struct{})}
		g.nodes[nodeID] = n
	}
	if !n.fraud {
		n.fraud = true
		g.fraudCount++
	}
}

// IsFraud reports whether a node carries the fraud flag.
func (g *Graph) IsFraud(nodeID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[nodeID]
	return ok && n.fraud
}

// NetworkRisk computes the link-analysis risk for a user in [0, 1].
//
// Unknown users score 0.0; link analysis never penalizes absence. A
// breadth-first walk bounded to 2 hops returns 1.0 on any fraud-flagged
// node, regardless of hop distance within the bound. Otherwise each device
// adjacent to the user is checked for fan-out: a device shared by more than
// the threshold of distinct users scores 0.8. The error return marks a
// traversal failure (malformed adjacency), which callers log and treat as
// 0.0; internal failure must never escalate risk.
func (g *Graph) NetworkRisk(userID string) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[userID]
	if !ok {
		return RiskNone, nil
	}

	// 2-hop BFS for a fraud link.
	visited := map[string]bool{userID: true}
	frontier := []string{userID}
	if start.fraud {
		return RiskFraudLink, nil
	}
	for hop := 0; hop < maxHops; hop++ {
		var next []string
		for _, id := range frontier {
			n, ok := g.nodes[id]
			if !ok {
				return RiskNone, fmt.Errorf("adjacency references missing node %q", id)
			}
			examined := 0
			for nb := range n.neighbors {
				if examined++; examined > maxNeighborsExamined {
					break
				}
				if visited[nb] {
					continue
				}
				visited[nb] = true
				nbNode, ok := g.nodes[nb]
				if !ok {
					return RiskNone, fmt.Errorf("edge %q-%q references missing node", id, nb)
				}
				if nbNode.fraud {
					return RiskFraudLink, nil
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}

	// Synthetic-identity fan-out: one device, many users.
	examined := 0
	for nb := range start.neighbors {
		if examined++; examined > maxNeighborsExamined {
			break
		}
		dev, ok := g.nodes[nb]
		if !ok || dev.typ != NodeDevice {
			continue
		}
		users := 0
		devExamined := 0
		for du := range dev.neighbors {
			if devExamined++; devExamined > maxNeighborsExamined {
				break
			}
			if u, ok := g.nodes[du]; ok && u.typ == NodeUser {
				users++
			}
		}
		if users > g.fanoutThreshold {
			return RiskFanout, nil
		}
	}

	return RiskNone, nil
}

// Stats reports graph size for metrics and health checks.
type Stats struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	FraudNodes int `json:"fraudNodes"`
}

// Stats returns current node, edge, and fraud-flag counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Stats{Nodes: len(g.nodes), Edges: g.edges, FraudNodes: g.fraudCount}
}

// ensure creates a node if absent. An existing node keeps its original
// type tag; a node created by MarkFraud before its first transaction gets
// its type on first record.
func (g *Graph) ensure(id string, typ NodeType) {
	n, ok := g.nodes[id]
	if !ok {
		g.nodes[id] = &node{typ: typ, neighbors: make(map[string]struct{})}
		return
	}
	if n.typ == "" {
		n.typ = typ
	}
}

// addEdge links two existing nodes (caller holds the write lock).
func (g *Graph) addEdge(a, b string) {
	if a == b {
		return
	}
	na, nb := g.nodes[a], g.nodes[b]
	if _, exists := na.neighbors[b]; exists {
		return
	}
	na.neighbors[b] = struct{}{}
	nb.neighbors[a] = struct{}{}
	g.edges++
}
