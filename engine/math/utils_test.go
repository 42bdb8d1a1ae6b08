package math

import "testing"

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Fatal("int clamp")
	}
	if Clamp(0.5, 1.0, 2.0) != 1.0 {
		t.Fatal("float clamp")
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ v, a, want uint64 }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 256, 256},
		{7, 0, 7},
	}
	for _, c := range cases {
		if got := AlignUp(c.v, c.a); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.v, c.a, got, c.want)
		}
	}
}

func TestProduct(t *testing.T) {
	if Product([]int{4, 3}) != 12 || Product([]int{}) != 1 {
		t.Fatal("product")
	}
}
