package memento

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested memento does not exist.
var ErrNotFound = errors.New("memento not found")

// Relation names the kind of reference an IntegrityError is about.
type Relation string

const (
	RelationParent           Relation = "parent"
	RelationChild            Relation = "child"
	RelationLocation         Relation = "location"
	RelationApplication      Relation = "application"
	RelationTopLevelLocation Relation = "top-level location"

	// Tree links whose two ends disagree: the parent does not list the node,
	// or a listed child names another parent. RelationUnreachable marks a
	// node whose parent chain loops without reaching a root.
	RelationUnlisted     Relation = "unlisted child"
	RelationForeignChild Relation = "foreign child"
	RelationUnreachable  Relation = "root"
)

// IntegrityError reports a dangling or one-sided reference inside an
// aggregate snapshot. MissingID is the id at the other end of the reference.
// It is always fatal to the checkpoint or rebind in progress.
type IntegrityError struct {
	Object    ObjectType
	NodeID    string
	Relation  Relation
	MissingID string
}

func (e *IntegrityError) Error() string {
	switch e.Relation {
	case RelationUnlisted:
		return fmt.Sprintf("memento integrity: %s %s names parent %s, which does not list it as a child", e.Object, e.NodeID, e.MissingID)
	case RelationForeignChild:
		return fmt.Sprintf("memento integrity: %s %s lists child %s, which names another parent", e.Object, e.NodeID, e.MissingID)
	case RelationUnreachable:
		return fmt.Sprintf("memento integrity: %s %s is not reachable from any root through parent %s", e.Object, e.NodeID, e.MissingID)
	}
	if e.MissingID == "" {
		return fmt.Sprintf("memento integrity: %s %s lists an empty %s id", e.Object, e.NodeID, e.Relation)
	}
	return fmt.Sprintf("memento integrity: %s %s references missing %s %s", e.Object, e.NodeID, e.Relation, e.MissingID)
}

// UnresolvedReferenceError reports a reference-typed config or attribute
// whose target is absent from the snapshot being rebound.
type UnresolvedReferenceError struct {
	Object   ObjectType
	NodeID   string
	Key      string
	Target   ObjectType
	TargetID string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: %s %s key %q points at missing %s %s", e.Object, e.NodeID, e.Key, e.Target, e.TargetID)
}
