package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	if Sum([]byte("abc")) != Sum([]byte("abc")) {
		t.Fatal("same input should hash the same")
	}
	if Sum([]byte("abc")) == Sum([]byte("abd")) {
		t.Fatal("different input should hash differently")
	}
}

func TestDigest_FieldBoundaries(t *testing.T) {
	a := New().String("ab").String("c").Sum()
	b := New().String("a").String("bc").Sum()
	if a == b {
		t.Error("field boundaries must change the digest")
	}
}

func TestDigest_Int(t *testing.T) {
	if New().Int(1).Sum() == New().Int(2).Sum() {
		t.Error("ints should affect the digest")
	}
}
