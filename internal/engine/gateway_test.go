package engine

import (
	"testing"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/numeric"
)

// TestCompareGatewayValuesSignedPhysicalMatch guards against double
// sign-extension: extractResolved already hands compareGatewayValues a
// fully sign-extended 64-bit pattern, so it must not be re-extended.
func TestCompareGatewayValuesSignedPhysicalMatch(t *testing.T) {
	src := &busmodel.ResolvedSignal{Length: 8, Signed: true, Factor: 1, Offset: 0}
	tgt := &busmodel.ResolvedSignal{Length: 8, Signed: true, Factor: 1, Offset: 0}

	raw := numeric.ExtractSignal([]byte{0xFB}, 0, 8, numeric.LittleEndian, true)

	status, match := compareGatewayValues(raw, raw, src, tgt)
	if status != "physical" || !match {
		t.Fatalf("expected matching physical comparison for raw=-5, got status=%q match=%v", status, match)
	}
}
