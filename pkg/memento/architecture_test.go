package memento

import (
	"strings"
	"testing"

	"brooklyn/testutil"
)

func TestMementoModelStaysPublic(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.InternalImportForbidden,
		func(path string) bool { return strings.HasSuffix(path, "/pkg/graph") },
	), "mementos are plain data and never reference live objects")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.InternalImportForbidden, "pkg/memento is importable outside this module")
}
