package compose

import (
	"fmt"
	"strings"

	"github.com/fabricpilot/vanctl/internal/store/models"
)

// roleAffinity is the binding role reserved for affinity pairings (§4.10):
// a binding of this role exposes its partner as affif/affblock during
// template expansion instead of the usual peerif/peerblock.
const roleAffinity = "affinity"

// canAcceptBinding reports why bi cannot take one more binding of role, or
// "" if it can.
func (bi *boundInterface) canAcceptBinding(role string) string {
	if bi.spec.Role != role {
		return fmt.Sprintf("role mismatch: %q is role %q, binding wants %q", bi.spec.Name, bi.spec.Role, role)
	}
	if bi.spec.MaxBindings != nil && bi.boundCount >= *bi.spec.MaxBindings {
		return fmt.Sprintf("interface %q exceeds maxBindings %d", bi.spec.Name, *bi.spec.MaxBindings)
	}
	return ""
}

// splitInterfacePath splits "a/b/c#iface" into its instance path and
// interface name.
func splitInterfacePath(path string) (instancePath, ifaceName string, ok bool) {
	idx := strings.LastIndex(path, "#")
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

// resolveInterface walks down through however many composite super
// bindings separate a declared interface from the base (simple-body)
// interface it ultimately delegates to, marking every intermediate
// interface bound-through. reason is non-empty when the walk could not
// reach a base interface (unknown path, dangling super binding) -- this is
// reported as a build warning rather than aborting the build.
func resolveInterface(byPath map[string]*instance, instancePath, ifaceName string) (inst *instance, bi *boundInterface, reason string) {
	cur, ok := byPath[instancePath]
	if !ok {
		return nil, nil, fmt.Sprintf("no instance at path %q", instancePath)
	}
	name := ifaceName
	for {
		b, ok := cur.interfaces[name]
		if !ok {
			return nil, nil, fmt.Sprintf("%s: no such interface %q", cur.row.Path, name)
		}
		if !cur.block.body.IsComposite() {
			return cur, b, ""
		}
		var super *SuperBinding
		for i := range cur.block.body.SuperBindings {
			if cur.block.body.SuperBindings[i].Interface == name {
				super = &cur.block.body.SuperBindings[i]
				break
			}
		}
		if super == nil {
			return nil, nil, fmt.Sprintf("%s: composite interface %q has no super binding", cur.row.Path, name)
		}
		b.boundThrough = true
		child, ok := cur.children[super.Child]
		if !ok {
			return nil, nil, fmt.Sprintf("%s: super binding %q references unknown child %q", cur.row.Path, name, super.Child)
		}
		cur = child
		name = super.ChildInterface
	}
}

// pairBinding validates and applies one bindings-table row against the
// instantiated graph, incrementing both sides' boundCount. A validation
// failure is returned as a warning string, not an error: a bad binding
// shouldn't abort the whole build, only show up in the build log.
func pairBinding(byPath map[string]*instance, northPath, southPath, role string) string {
	nInstPath, nIface, ok := splitInterfacePath(northPath)
	if !ok {
		return fmt.Sprintf("malformed north path %q", northPath)
	}
	sInstPath, sIface, ok := splitInterfacePath(southPath)
	if !ok {
		return fmt.Sprintf("malformed south path %q", southPath)
	}

	_, nBI, reason := resolveInterface(byPath, nInstPath, nIface)
	if reason != "" {
		return reason
	}
	_, sBI, reason := resolveInterface(byPath, sInstPath, sIface)
	if reason != "" {
		return reason
	}

	if msg := nBI.canAcceptBinding(role); msg != "" {
		return fmt.Sprintf("%s: %s", northPath, msg)
	}
	if msg := sBI.canAcceptBinding(role); msg != "" {
		return fmt.Sprintf("%s: %s", southPath, msg)
	}
	if nBI.spec.Polarity != models.PolarityNorth || sBI.spec.Polarity != models.PolaritySouth {
		return fmt.Sprintf("%s <-> %s: polarity mismatch", northPath, southPath)
	}

	nBI.boundCount++
	sBI.boundCount++
	nBI.boundPartner = southPath
	sBI.boundPartner = northPath
	nBI.boundRole = role
	sBI.boundRole = role
	return ""
}

// unmatchedInterfaces returns one warning per declared interface that was
// never bound and never bound-through a super binding.
func unmatchedInterfaces(byPath map[string]*instance) []string {
	var warnings []string
	for path, inst := range byPath {
		for name, bi := range inst.interfaces {
			if bi.boundCount == 0 && !bi.boundThrough {
				warnings = append(warnings, fmt.Sprintf("%s#%s: unmatched interface", path, name))
			}
		}
	}
	return warnings
}
