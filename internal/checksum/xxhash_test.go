package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	a := Sum([]byte("sales"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, Sum([]byte("sales")))
	assert.NotEqual(t, a, Sum([]byte("sales!")))
	assert.Len(t, Sum(nil), 16)
}
