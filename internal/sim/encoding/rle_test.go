package encoding

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVoxelsRoundTrip(t *testing.T) {
	blocks := []uint16{0, 0, 0, 5, 5, 5, 5, 7, 7, 0}
	axes := []uint8{0, 0, 0, 2, 2, 1, 1, 0, 0, 0}

	enc := EncodeVoxels(blocks, axes)
	gotB, gotA, err := DecodeVoxels(enc, len(blocks))
	if err != nil {
		t.Fatalf("DecodeVoxels: %v", err)
	}
	if diff := cmp.Diff(blocks, gotB); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(axes, gotA); diff != "" {
		t.Fatalf("axes mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeVoxelsRunsSplitOnAxis(t *testing.T) {
	same := EncodeVoxels([]uint16{3, 3, 3, 3}, nil)
	split := EncodeVoxels([]uint16{3, 3, 3, 3}, []uint8{2, 2, 1, 1})
	if len(split) <= len(same) {
		t.Fatalf("axis change should add a run: %q vs %q", split, same)
	}
}

func TestDecodeVoxelsRejectsBadInput(t *testing.T) {
	enc := EncodeVoxels([]uint16{1, 1, 2}, nil)
	if _, _, err := DecodeVoxels(enc, 4); err == nil {
		t.Fatalf("expected short count error")
	}
	if _, _, err := DecodeVoxels(enc, 2); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, _, err := DecodeVoxels("!!", 1); err == nil {
		t.Fatalf("expected base64 error")
	}
}
