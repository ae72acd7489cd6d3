// Package compose implements the application compose engine of §4.10
// (C10): a declarative composition of typed blocks connected by
// polarity-constrained bindings. Grounded on internal/deploystate's
// query-then-evaluate shape (load rows, walk a graph, write results back
// in one transaction) generalized from a single-entity evaluator to a
// whole-application graph walk.
package compose

import (
	"encoding/json"
	"fmt"

	"github.com/fabricpilot/vanctl/internal/store/models"
)

// InterfaceSpec is one interface a LibraryBlock declares. MaxBindings is
// nil for "unlimited" (§4.10).
type InterfaceSpec struct {
	Name        string          `json:"name"`
	Polarity    models.Polarity `json:"polarity"`
	Role        string          `json:"role"`
	MaxBindings *int            `json:"maxBindings,omitempty"`
}

// SimpleTemplate is one entry of a simple-body LibraryBlock: a manifest
// template plus the optional affinity/platform filters that decide which
// sites it expands for (§4.9, §4.10).
type SimpleTemplate struct {
	Name      string   `json:"name"`
	Body      string   `json:"body"` // exprtemplate source, expanded per-site
	Affinity  []string `json:"affinity,omitempty"`
	Platforms []string `json:"platforms,omitempty"` // empty: all platforms
}

// ChildBinding is an intra-composite binding declared inside a composite
// block's own body, pairing two of its children's interfaces before the
// composite is ever instantiated.
type ChildBinding struct {
	NorthChild     string `json:"northChild"`
	NorthInterface string `json:"northInterface"`
	SouthChild     string `json:"southChild"`
	SouthInterface string `json:"southInterface"`
	Role           string `json:"role"`
}

// ChildRef is one named child of a composite block, referencing another
// LibraryBlock by name (optionally pinned to a revision).
type ChildRef struct {
	Block    string `json:"block"`
	Revision *int   `json:"revision,omitempty"`
}

// SuperBinding delegates one of a composite block's own declared
// interfaces to a single child's interface of the same role and the same
// polarity. A super binding never creates a row in the bindings table:
// the engine walks past the composite straight to the child interface,
// marking every intermediate interface along the way bound-through so it
// is not reported as unmatched.
type SuperBinding struct {
	Interface      string `json:"interface"`
	Child          string `json:"child"`
	ChildInterface string `json:"childInterface"`
}

// Body is a LibraryBlock's decoded body_json: either Simple (a template
// list) or Composite (child block references plus intra-child bindings),
// mutually exclusive per §4.10.
type Body struct {
	Interfaces []InterfaceSpec `json:"interfaces"`

	// Defaults seeds localConfig before an instance's own config_json and
	// metadata are overlaid on top (§4.10 "Deploy to VAN").
	Defaults map[string]interface{} `json:"defaults,omitempty"`

	Simple []SimpleTemplate `json:"simple,omitempty"`

	Composite     map[string]ChildRef `json:"composite,omitempty"`
	ChildBindings []ChildBinding      `json:"childBindings,omitempty"`
	SuperBindings []SuperBinding      `json:"superBindings,omitempty"`
}

// IsComposite reports whether this body is the composite (child-map) form.
func (b Body) IsComposite() bool { return len(b.Composite) > 0 }

// ParseBody decodes a LibraryBlock's body_json column.
func ParseBody(bodyJSON string) (Body, error) {
	var b Body
	if err := json.Unmarshal([]byte(bodyJSON), &b); err != nil {
		return Body{}, fmt.Errorf("compose: decoding library block body: %w", err)
	}
	return b, nil
}

// loadedBlock pairs a LibraryBlock row with its decoded body, looked up
// once per distinct (name, revision) during a build.
type loadedBlock struct {
	row  models.LibraryBlock
	body Body
}

// instance is one node of the instantiated application graph: an
// InstanceBlock row plus its resolved library block and, for a composite
// block, its children by name.
type instance struct {
	row      models.InstanceBlock
	block    loadedBlock
	children map[string]*instance // only set for composite blocks

	// interfaces tracks each declared interface's current binding count,
	// keyed by interface name, so canAcceptBinding can enforce maxBindings.
	interfaces map[string]*boundInterface
}

type boundInterface struct {
	spec         InterfaceSpec
	boundCount   int
	boundThrough bool // true once a super binding walks through it

	// boundPartner/boundRole record the single partner interface path and
	// role when boundCount == 1, the "bound peer per interface, if exactly
	// one" (§4.10) that Deploy exposes as peerif/peerblock or, for
	// affinity-role bindings, affif/affblock.
	boundPartner string
	boundRole    string
}

func (i *instance) interfacePath(name string) string {
	return i.row.Path + "#" + name
}
