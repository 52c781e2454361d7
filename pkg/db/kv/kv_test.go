package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   []byte
	}{
		{"simple", []byte("abc"), []byte("abd")},
		{"trailing 0xff", []byte{'a', 0xff}, []byte{'b'}},
		{"all 0xff", []byte{0xff, 0xff}, nil},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrefixEnd(tt.prefix))
		})
	}
}

func TestPrefixEndDoesNotMutateInput(t *testing.T) {
	prefix := []byte("key/")
	_ = PrefixEnd(prefix)
	assert.Equal(t, []byte("key/"), prefix)
}
