package batch

import (
	"math/rand"
	"reflect"
	"testing"
)

func sizes(s ...uint64) func(int) uint64 {
	return func(i int) uint64 { return s[i] }
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func indices(batches []Batch) [][]int {
	out := make([][]int, len(batches))
	for i, b := range batches {
		out[i] = b.Indices
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		sizes []uint64
		bytes uint64
		count int
		want  [][]int
	}{
		{"next item would overflow", []uint64{100, 200}, 250, 10, [][]int{{0}, {1}}},
		{"everything fits", []uint64{10, 20, 30}, 1000, 10, [][]int{{0, 1, 2}}},
		{"count bound", []uint64{1, 1, 1, 1, 1}, 1000, 2, [][]int{{0, 1}, {2, 3}, {4}}},
		{"exact byte limit stays open", []uint64{100, 150, 1}, 250, 10, [][]int{{0, 1}, {2}}},
		{"oversized single item", []uint64{300, 10}, 250, 10, [][]int{{0}, {1}}},
		{"last item alone over limit", []uint64{10, 300}, 250, 10, [][]int{{0}, {1}}},
		{"single file", []uint64{5}, 250, 10, [][]int{{0}}},
		{"nothing selected", nil, 250, 10, [][]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := indices(Plan(seq(len(tt.sizes)), sizes(tt.sizes...), tt.bytes, tt.count))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Plan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanPreservesSelectionAndBytes(t *testing.T) {
	sz := sizes(7, 100, 8, 9, 100)
	selected := []int{4, 0, 3}
	got := Plan(selected, sz, 110, 100)

	if want := [][]int{{4, 0}, {3}}; !reflect.DeepEqual(indices(got), want) {
		t.Fatalf("Plan() = %v, want %v", indices(got), want)
	}
	if got[0].Bytes != 107 || got[1].Bytes != 9 {
		t.Errorf("batch bytes = %d,%d, want 107,9", got[0].Bytes, got[1].Bytes)
	}
	if TotalBytes(got) != 116 {
		t.Errorf("TotalBytes() = %d, want 116", TotalBytes(got))
	}
}

func TestPlanDefaults(t *testing.T) {
	got := Plan(seq(250), func(int) uint64 { return 1 }, 0, 0)
	if len(got) != 3 || got[0].Len() != DefaultMaxFiles || got[2].Len() != 50 {
		t.Errorf("Plan() with defaults gave %d batches", len(got))
	}
}

func TestPlanInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 500; round++ {
		n := rng.Intn(40)
		byteLimit := uint64(1 + rng.Intn(1000))
		countLimit := 1 + rng.Intn(8)
		s := make([]uint64, n)
		for i := range s {
			// Some files exceed the byte limit on their own.
			s[i] = uint64(rng.Intn(int(byteLimit) * 3 / 2))
		}
		selected := rng.Perm(n)

		batches := Plan(selected, sizes(s...), byteLimit, countLimit)

		var got []int
		for i, b := range batches {
			if b.Len() == 0 {
				t.Fatalf("round %d: batch %d is empty", round, i)
			}
			if b.Len() > countLimit {
				t.Errorf("round %d: batch %d holds %d files, limit %d", round, i, b.Len(), countLimit)
			}
			var sum uint64
			for _, idx := range b.Indices {
				sum += s[idx]
			}
			if sum != b.Bytes {
				t.Errorf("round %d: batch %d reports %d bytes, files sum to %d", round, i, b.Bytes, sum)
			}
			if b.Bytes > byteLimit && b.Len() != 1 {
				t.Errorf("round %d: batch %d has %d files and %d bytes over limit %d", round, i, b.Len(), b.Bytes, byteLimit)
			}
			got = append(got, b.Indices...)
		}
		if n == 0 {
			if len(batches) != 0 {
				t.Errorf("round %d: empty selection gave %d batches", round, len(batches))
			}
			continue
		}
		if !reflect.DeepEqual(got, selected) {
			t.Errorf("round %d: batches reorder the selection: %v vs %v", round, got, selected)
		}
	}
}
