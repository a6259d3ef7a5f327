package cloudinary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformation(t *testing.T) {
	got, err := Transformation([]string{OpResize, OpWatermark})
	require.NoError(t, err)
	assert.Equal(t, transformations[OpResize]+"/"+transformations[OpWatermark], got)

	got, err = Transformation(nil)
	require.NoError(t, err)
	assert.Equal(t, transformations[OpCompress], got)

	_, err = Transformation([]string{OpResize, "sepia"})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestPublicIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712/Cadence/chat/u1/abc.jpg", "Cadence/chat/u1/abc"},
		{"https://res.cloudinary.com/demo/image/upload/q_auto,f_auto,w_200,c_fill/Cadence/chat/u1/abc.png", "Cadence/chat/u1/abc"},
		{"https://res.cloudinary.com/demo/image/upload/w_200/v99/sample.jpg", "sample"},
		{"https://res.cloudinary.com/demo/image/upload/sample", "sample"},
	}
	for _, tt := range tests {
		got, err := PublicIDFromURL(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := PublicIDFromURL("https://example.com/picture.jpg")
	assert.Error(t, err)
}
