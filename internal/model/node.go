// Package model defines the data structures shared by the strata layers.
package model

import "fmt"

// Kind tags a workspace node.
type Kind string

const (
	// KindDepot is a root workspace holding a pristine decompiled program tree.
	KindDepot Kind = "depot"
	// KindMod is a derived workspace described by a patch set.
	KindMod Kind = "mod"
)

// ParseKind validates a kind tag read from a description file.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindDepot, KindMod:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("unknown node kind %q", value)
	}
}

// NoParent marks a root node.
const NoParent = -1

// DepotData is the payload carried by depot nodes.
type DepotData struct {
	AppID            int    `json:"appId" yaml:"appId"`
	DepotID          int    `json:"depotId" yaml:"depotId"`
	PathToExecutable string `json:"pathToExecutable" yaml:"pathToExecutable"`
}

// Node is one workspace in the forest. Parent and Children are indices into
// the forest arena.
type Node struct {
	Index    int
	Kind     Kind
	Name     string
	PatchDir Path
	Parent   int
	Children []int
	Depot    *DepotData
	Source   Path
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.Parent == NoParent
}

// Description is the on-disk node-graph description.
type Description struct {
	Dependencies []string         `json:"dependencies" yaml:"dependencies"`
	Nodes        []NodeDescriptor `json:"nodes" yaml:"nodes" validate:"dive"`
}

// NodeDescriptor is one node entry of a Description.
type NodeDescriptor struct {
	Kind     string           `json:"kind" yaml:"kind" validate:"required,nodekind"`
	Name     string           `json:"name" yaml:"name" validate:"required"`
	PatchDir string           `json:"patchDir" yaml:"patchDir" validate:"required"`
	Parent   string           `json:"parent,omitempty" yaml:"parent,omitempty"`
	Data     *DepotData       `json:"data,omitempty" yaml:"data,omitempty"`
	Children []NodeDescriptor `json:"children,omitempty" yaml:"children,omitempty" validate:"dive"`
}
