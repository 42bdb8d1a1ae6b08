package metadata

import "testing"

func TestElementTypeSizes(t *testing.T) {
	cases := []struct {
		e          ElementType
		item, comp uint32
		narrow     bool
	}{
		{ELEMENT_TYPE_FLOAT, 4, 1, true},
		{ELEMENT_TYPE_VEC3, 4, 3, true},
		{ELEMENT_TYPE_VEC4, 4, 4, false},
		{ELEMENT_TYPE_DOUBLE, 8, 1, true},
		{ELEMENT_TYPE_DVEC2, 8, 2, true},
		{ELEMENT_TYPE_UVEC4, 4, 4, false},
		{ELEMENT_TYPE_MAT4, 4, 16, false},
	}
	for _, c := range cases {
		if c.e.ItemSize() != c.item || c.e.Components() != c.comp || c.e.IsNarrow() != c.narrow {
			t.Errorf("%s: got item=%d comp=%d narrow=%v", c.e, c.e.ItemSize(), c.e.Components(), c.e.IsNarrow())
		}
	}
	e, err := ElementTypeFromString(" vec2 ")
	if err != nil || e != ELEMENT_TYPE_VEC2 {
		t.Fatalf("parse vec2: %v %v", e, err)
	}
	if _, err := ElementTypeFromString("quaternion"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestFrameSlots(t *testing.T) {
	if (OutputTarget{Kind: OUTPUT_KIND_SURFACE}).FrameSlots() != 3 {
		t.Fatal("surface targets are triple buffered")
	}
	if (OutputTarget{Kind: OUTPUT_KIND_OFFSCREEN}).FrameSlots() != 1 {
		t.Fatal("offscreen targets are single buffered")
	}
	if (OutputTarget{Kind: OUTPUT_KIND_SURFACE, Slots: 2}).FrameSlots() != 2 {
		t.Fatal("explicit slot count wins")
	}
}

func TestSetRoleOrder(t *testing.T) {
	roles := SetRoles()
	for i, r := range roles {
		if int(r) != i {
			t.Fatalf("role %s out of order", r)
		}
		back, ok := SetRoleFromString(r.String())
		if !ok || back != r {
			t.Fatalf("round trip of %s failed", r)
		}
	}
}
