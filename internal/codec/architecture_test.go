package codec

import (
	"testing"

	"brooklyn/testutil"
)

func TestCodecDoesNotReachLiveGraph(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.LiveGraphImportForbidden,
		testutil.BackendImportForbidden,
	), "codecs see mementos only")
}
