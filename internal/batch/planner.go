// Package batch groups selected files into upload batches bounded by bytes
// and file count.
package batch

const (
	DefaultMaxBytes = 500_000_000
	DefaultMaxFiles = 100
)

// Batch is a contiguous run of catalog indices submitted in one request.
type Batch struct {
	Indices []int
	Bytes   uint64
}

// Len returns the number of files in the batch.
func (b Batch) Len() int {
	return len(b.Indices)
}

// Plan walks selected in order and closes a batch when adding the next item
// would exceed byteLimit or when the batch holds countLimit files. A single
// item larger than byteLimit still forms its own batch. The result never
// contains an empty batch.
func Plan(selected []int, sizeOf func(int) uint64, byteLimit uint64, countLimit int) []Batch {
	if byteLimit == 0 {
		byteLimit = DefaultMaxBytes
	}
	if countLimit <= 0 {
		countLimit = DefaultMaxFiles
	}

	var (
		batches []Batch
		cur     Batch
	)
	for i, idx := range selected {
		cur.Indices = append(cur.Indices, idx)
		cur.Bytes += sizeOf(idx)

		compare := cur.Bytes
		if i+1 < len(selected) {
			compare += sizeOf(selected[i+1])
		}
		if compare > byteLimit || len(cur.Indices) >= countLimit {
			batches = append(batches, cur)
			cur = Batch{}
		}
	}
	if len(cur.Indices) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// TotalBytes sums the byte counts of all batches.
func TotalBytes(batches []Batch) uint64 {
	var n uint64
	for _, b := range batches {
		n += b.Bytes
	}
	return n
}
