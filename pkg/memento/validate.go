package memento

import (
	"github.com/hashicorp/go-multierror"
)

// Validate checks the referential integrity of agg: every parent and child of
// every entity and location must be present and must point back at the node
// naming it, and every location an entity is deployed into must be present. It stops at the first problem and returns it
// as an *IntegrityError. Validate never repairs the aggregate.
func Validate(agg *BrooklynMemento) error {
	var first error
	visitIntegrity(agg, func(err *IntegrityError) bool {
		first = err
		return false
	})
	return first
}

// ValidateAll is like Validate but reports every problem, aggregated into a
// *multierror.Error of *IntegrityError values.
func ValidateAll(agg *BrooklynMemento) error {
	var result *multierror.Error
	visitIntegrity(agg, func(err *IntegrityError) bool {
		result = multierror.Append(result, err)
		return true
	})
	return result.ErrorOrNil()
}

// visitIntegrity walks agg in id order, calling report for each problem
// until report returns false.
func visitIntegrity(agg *BrooklynMemento, report func(*IntegrityError) bool) {
	entityNode := func(ref string) (TreeNode, bool) {
		m, ok := agg.entities[ref]
		return m, ok
	}
	locationNode := func(ref string) (TreeNode, bool) {
		m, ok := agg.locations[ref]
		return m, ok
	}
	hasEntity := func(ref string) bool {
		_, ok := agg.entities[ref]
		return ok
	}
	hasLocation := func(ref string) bool {
		_, ok := agg.locations[ref]
		return ok
	}
	for _, id := range sortedKeys(agg.entities) {
		m := agg.entities[id]
		if !checkTreeNode(TypeEntity, m, entityNode, report) {
			return
		}
		for _, loc := range m.locations {
			if !hasLocation(loc) {
				if !report(&IntegrityError{Object: TypeEntity, NodeID: id, Relation: RelationLocation, MissingID: loc}) {
					return
				}
			}
		}
	}
	for _, id := range sortedKeys(agg.locations) {
		m := agg.locations[id]
		if !checkTreeNode(TypeLocation, m, locationNode, report) {
			return
		}
	}
	for _, id := range agg.applicationIDs {
		if !hasEntity(id) {
			if !report(&IntegrityError{Object: TypeEntity, NodeID: id, Relation: RelationApplication, MissingID: id}) {
				return
			}
		}
	}
	for _, id := range agg.topLevelLocationIDs {
		if !hasLocation(id) {
			if !report(&IntegrityError{Object: TypeLocation, NodeID: id, Relation: RelationTopLevelLocation, MissingID: id}) {
				return
			}
		}
	}
}

// checkTreeNode checks both directions of node's tree links: its parent must
// exist and list it, and each listed child must exist and name it as parent.
func checkTreeNode(t ObjectType, node TreeNode, lookup func(string) (TreeNode, bool), report func(*IntegrityError) bool) bool {
	if parentID := node.Parent(); parentID != "" {
		parent, ok := lookup(parentID)
		switch {
		case !ok:
			if !report(&IntegrityError{Object: t, NodeID: node.ID(), Relation: RelationParent, MissingID: parentID}) {
				return false
			}
		case !parent.HasChild(node.ID()):
			if !report(&IntegrityError{Object: t, NodeID: node.ID(), Relation: RelationUnlisted, MissingID: parentID}) {
				return false
			}
		}
	}
	for _, childID := range node.Children() {
		child, ok := lookup(childID)
		switch {
		case childID == "" || !ok:
			if !report(&IntegrityError{Object: t, NodeID: node.ID(), Relation: RelationChild, MissingID: childID}) {
				return false
			}
		case child.Parent() != node.ID():
			if !report(&IntegrityError{Object: t, NodeID: node.ID(), Relation: RelationForeignChild, MissingID: childID}) {
				return false
			}
		}
	}
	if parentID := node.Parent(); parentID != "" && inParentCycle(node, lookup) {
		if !report(&IntegrityError{Object: t, NodeID: node.ID(), Relation: RelationUnreachable, MissingID: parentID}) {
			return false
		}
	}
	return true
}

// inParentCycle reports whether following parents from node leads back to
// node.
func inParentCycle(node TreeNode, lookup func(string) (TreeNode, bool)) bool {
	seen := map[string]bool{node.ID(): true}
	for p := node.Parent(); p != ""; {
		if p == node.ID() {
			return true
		}
		if seen[p] {
			return false
		}
		seen[p] = true
		n, ok := lookup(p)
		if !ok {
			return false
		}
		p = n.Parent()
	}
	return false
}
