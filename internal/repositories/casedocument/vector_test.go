package casedocument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Value(t *testing.T) {
	tests := []struct {
		name string
		in   Vector
		want any
	}{
		{name: "empty is null", in: nil, want: nil},
		{name: "integers", in: Vector{1, 2, 3}, want: "[1,2,3]"},
		{name: "fractions", in: Vector{0.5, -0.25}, want: "[0.5,-0.25]"},
		{name: "single precision", in: Vector{0.1}, want: "[0.1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVector_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    Vector
		wantErr bool
	}{
		{name: "null", src: nil, want: nil},
		{name: "bytes", src: []byte("[1,2,3]"), want: Vector{1, 2, 3}},
		{name: "string with spaces", src: " [0.5, -0.25] ", want: Vector{0.5, -0.25}},
		{name: "empty", src: "[]", want: Vector{}},
		{name: "missing brackets", src: "1,2", wantErr: true},
		{name: "bad element", src: "[1,x]", wantErr: true},
		{name: "wrong type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vector
			err := v.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}
