package solidpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("/a.ttl"))
	assert.NoError(t, Validate("/"))

	var verr *ValidationError

	err := Validate("not-absolute")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrnoENOTDIR, verr.Errno)

	err = Validate("/" + strings.Repeat("a", 1024))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrnoENAMETOOLONG, verr.Errno)

	err = Validate("/contains-6291403e-8887-40ec-9e6d-7f394008a979-sentinel")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrnoEINVAL, verr.Errno)
}

func TestToWireFromWireRoundTrip(t *testing.T) {
	decoded := "https://pod.example/container/🦖/"
	wire, err := ToWire(decoded)
	require.NoError(t, err)
	assert.Equal(t, "https://pod.example/container/%F0%9F%A6%96/", wire)

	back, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, decoded, back)
}

func TestToWirePreservesQueryAndAuthority(t *testing.T) {
	wire, err := ToWire("https://user@pod.example:8443/a b?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://user@pod.example:8443/a%20b?x=1#frag", wire)
}

func TestRelative(t *testing.T) {
	assert.Equal(t, "child.ttl", Relative("https://pod.example/dir/", "https://pod.example/dir/child.ttl"))
	assert.Equal(t, "sub/", Relative("https://pod.example/dir/", "https://pod.example/dir/sub/"))
}
