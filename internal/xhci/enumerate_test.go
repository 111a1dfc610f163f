package xhci

import "testing"

func TestHasInterruptInEndpointDetectsMatch(t *testing.T) {
	cfg := []byte{
		9, 2, 0, 0, 0, 0, 0, 0, 0, // configuration descriptor (type 2)
		9, 4, 0, 0, 0, 0, 0, 0, 0, // interface descriptor (type 4)
		7, 5, 0x81, 0x03, 0x08, 0x00, 0x0A, // endpoint: IN, interrupt
	}
	if !hasInterruptInEndpoint(cfg) {
		t.Fatalf("expected interrupt-in endpoint to be detected")
	}
}

func TestHasInterruptInEndpointRejectsBulkOrOut(t *testing.T) {
	bulkIn := []byte{
		9, 2, 0, 0, 0, 0, 0, 0, 0,
		7, 5, 0x81, 0x02, 0x00, 0x02, 0x00, // IN but bulk
	}
	if hasInterruptInEndpoint(bulkIn) {
		t.Fatalf("bulk IN endpoint should not count as interrupt-in")
	}

	interruptOut := []byte{
		9, 2, 0, 0, 0, 0, 0, 0, 0,
		7, 5, 0x01, 0x03, 0x08, 0x00, 0x0A, // interrupt but OUT
	}
	if hasInterruptInEndpoint(interruptOut) {
		t.Fatalf("interrupt OUT endpoint should not count as interrupt-in")
	}
}

func TestHasInterruptInEndpointEmptyConfig(t *testing.T) {
	if hasInterruptInEndpoint(nil) {
		t.Fatalf("empty config should report no interrupt-in endpoint")
	}
}
