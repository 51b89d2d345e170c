package idgen

import "testing"

func TestNextSkipsZero(t *testing.T) {
	g := &Generator{next: 0xFFFFFFFF}
	id := g.Next(nil)
	if id != 1 {
		t.Fatalf("expected wraparound to skip 0 and land on 1, got %d", id)
	}
}

func TestNextIsMonotonic(t *testing.T) {
	g := New()
	prev := uint32(0)
	for i := 0; i < 5; i++ {
		id := g.Next(nil)
		if id <= prev {
			t.Fatalf("id %d did not increase past previous %d", id, prev)
		}
		prev = id
	}
}

func TestNextSkipsTakenIDs(t *testing.T) {
	g := New()
	taken := map[uint32]bool{1: true, 2: true}
	id := g.Next(func(candidate uint32) bool { return taken[candidate] })
	if id != 3 {
		t.Fatalf("expected first free id 3, got %d", id)
	}
}
