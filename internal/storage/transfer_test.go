package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitRanges(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		partSize int64
		maxParts int
		want     []byteRange
	}{
		{"empty", 0, 10, 4, nil},
		{"single", 7, 10, 4, []byteRange{{0, 6}}},
		{"even", 20, 10, 4, []byteRange{{0, 9}, {10, 19}}},
		{"remainder in last", 25, 10, 4, []byteRange{{0, 7}, {8, 15}, {16, 24}}},
		{"capped", 100, 10, 2, []byteRange{{0, 49}, {50, 99}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitRanges(tt.size, tt.partSize, tt.maxParts)
			assert.Equal(t, tt.want, got)

			var covered int64
			for _, r := range got {
				covered += r.end - r.start + 1
			}
			assert.Equal(t, tt.size, covered)
		})
	}
}

func TestNewParallelTransferPartSizeFloor(t *testing.T) {
	transfer := NewParallelTransfer(&MinioStore{}, 1024)
	assert.Equal(t, int64(DefaultTransferPartSize), transfer.partSize)

	transfer = NewParallelTransfer(&MinioStore{}, 64*1024*1024)
	assert.Equal(t, int64(64*1024*1024), transfer.partSize)
}
