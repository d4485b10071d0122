package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateBufferRejectsBadGeometry(t *testing.T) {
	p := NewPool(nil)

	tests := []struct {
		name                  string
		width, height, stride int32
	}{
		{"zero width", 0, 10, 40},
		{"zero height", 10, 0, 40},
		{"negative width", -1, 10, 40},
		{"stride under width", 10, 10, 39},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateBuffer(tt.width, tt.height, tt.stride, 1)
			assert.Error(t, err)
		})
	}
}
