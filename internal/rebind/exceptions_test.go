package rebind

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brooklyn/pkg/memento"
)

func TestExceptionHandlerStrict(t *testing.T) {
	h := NewExceptionHandler(true, nil)
	unknown := &UnknownTypeError{Object: memento.TypeEntity, ID: "e1", Type: "acme.Gone"}

	err := h.OnUnknownType(unknown)

	assert.Same(t, unknown, err)
	assert.True(t, h.Strict())
	assert.NoError(t, h.Err())
	assert.Empty(t, h.Problems())
}

func TestExceptionHandlerLenient(t *testing.T) {
	h := NewExceptionHandler(false, nil)

	assert.NoError(t, h.OnUnknownType(&UnknownTypeError{Object: memento.TypeEntity, ID: "e1", Type: "acme.Gone"}))
	assert.NoError(t, h.OnDanglingReference(&memento.UnresolvedReferenceError{
		Object: memento.TypeEntity, NodeID: "e1", Key: "db", Target: memento.TypeEntity, TargetID: "db",
	}))
	assert.NoError(t, h.OnRebindFailed(memento.TypeLocation, "l1", errors.New("boom")))

	err := h.Err()
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
	var unknown *UnknownTypeError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, "acme.Gone", unknown.Type)

	h.Reset()
	assert.NoError(t, h.Err())
}

func TestIsIntegrity(t *testing.T) {
	err := &memento.IntegrityError{Object: memento.TypeEntity, NodeID: "a", Relation: memento.RelationParent, MissingID: "b"}
	assert.True(t, isIntegrity(err))
	assert.False(t, isIntegrity(errors.New("other")))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(memento.TypeEntity, "acme.Web", memento.KeyDef{Name: "port", TypeName: "int"})

	assert.True(t, r.Known(memento.TypeEntity, "acme.Web"))
	assert.False(t, r.Known(memento.TypeEntity, "acme.DB"))
	assert.False(t, r.Known(memento.TypeLocation, "acme.Web"))

	def, ok := r.LookupKey("acme.Web", "port")
	require.True(t, ok)
	assert.Equal(t, "int", def.TypeName)
	_, ok = r.LookupKey("acme.Web", "host")
	assert.False(t, ok)

	assert.True(t, OpenRegistry().Known(memento.TypePolicy, "anything"))
}
