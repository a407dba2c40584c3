package proto

import (
	"bytes"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	cases := []struct {
		name string
		typ  uint16
		id   uint32
		args []any
	}{
		{"empty", Success, 0, nil},
		{"error-with-id", Error, 42, nil},
		{"single-string", ActivateSession, 7, []any{"hello world"}},
		{"mixed", 99, NoID, []any{uint16(3), uint16(len("secret")), "name", "secret"}},
		{"string-list", 100, 1, []any{[]string{"channel1", "channel2", "channel3"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frame := Build(c.typ, c.id, c.args...)

			hdr, err := ParseHeader(frame)
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			if err := CheckSize(hdr, frame); err != nil {
				t.Fatalf("CheckSize: %v", err)
			}
			if hdr.Type != c.typ {
				t.Errorf("type = %d, want %d", hdr.Type, c.typ)
			}
			if hdr.ID != c.id {
				t.Errorf("id = %d, want %d", hdr.ID, c.id)
			}
			if int(hdr.Size) != len(frame) {
				t.Errorf("size = %d, want %d", hdr.Size, len(frame))
			}
		})
	}
}

func TestCheckSizeMismatch(t *testing.T) {
	frame := Build(Success, 1)
	frame = append(frame, 0xFF) // corrupt: extra trailing byte not reflected in Size
	hdr, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if err := CheckSize(hdr, frame); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestParseStringsAcceptsBothConventions(t *testing.T) {
	withTrailing := PackStrings([]string{"a", "b", "c"})
	withoutTrailing := bytes.TrimSuffix(withTrailing, []byte{0})

	got1 := ParseStrings(withTrailing)
	got2 := ParseStrings(withoutTrailing)

	want := []string{"a", "b", "c"}
	if !equalStrings(got1, want) {
		t.Errorf("with trailing NUL: got %v, want %v", got1, want)
	}
	if !equalStrings(got2, want) {
		t.Errorf("without trailing NUL: got %v, want %v", got2, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
