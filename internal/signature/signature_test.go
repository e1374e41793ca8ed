package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	tag := Sign([]byte("The quick brown fox jumps over the lazy dog"), []byte("key"))
	assert.Equal(t, "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", tag)
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"searchId":"abc","status":"ready"}`)
	assert.Equal(t, Sign(payload, []byte("s")), Sign(payload, []byte("s")))
	assert.NotEqual(t, Sign(payload, []byte("s")), Sign(payload, []byte("t")))
}

func TestVerify(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"searchId":"abc","status":"processing"}`)
	valid := Sign(payload, secret)
	digest := strings.TrimPrefix(valid, Prefix)

	tests := []struct {
		name    string
		payload []byte
		tag     string
		want    bool
	}{
		{name: "valid", payload: payload, tag: valid, want: true},
		{name: "empty tag", payload: payload, tag: "", want: false},
		{name: "missing prefix", payload: payload, tag: digest, want: false},
		{name: "wrong prefix", payload: payload, tag: "sha1=" + digest, want: false},
		{name: "uppercase hex", payload: payload, tag: Prefix + strings.ToUpper(digest), want: false},
		{name: "truncated", payload: payload, tag: valid[:len(valid)-2], want: false},
		{name: "not hex", payload: payload, tag: Prefix + strings.Repeat("z", 64), want: false},
		{name: "tampered payload", payload: []byte(`{"searchId":"abc","status":"ready"}`), tag: valid, want: false},
		{name: "reserialized payload", payload: []byte(`{"searchId": "abc", "status": "processing"}`), tag: valid, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.payload, tt.tag, secret))
		})
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	payload := []byte("body")
	assert.False(t, Verify(payload, Sign(payload, []byte("a")), []byte("b")))
}

func TestNewSigner(t *testing.T) {
	_, err := NewSigner("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	s, err := NewSigner("whsec_test")
	require.NoError(t, err)

	payload := []byte("hello")
	tag := s.Sign(payload)
	assert.Equal(t, Sign(payload, []byte("whsec_test")), tag)
	assert.True(t, s.Verify(payload, tag))
	assert.False(t, s.Verify([]byte("hello!"), tag))
}

func TestVerify_RejectsSingleBitFlips(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"searchId":"a1","status":"ready"}`)
	tag := Sign(payload, secret)
	require.True(t, Verify(payload, tag, secret))

	for i := range len(payload) * 8 {
		mutated := append([]byte(nil), payload...)
		mutated[i/8] ^= 1 << (i % 8)
		assert.False(t, Verify(mutated, tag, secret), "payload bit %d", i)
	}

	digest := []byte(strings.TrimPrefix(tag, Prefix))
	for i := range len(digest) * 8 {
		mutated := append([]byte(nil), digest...)
		mutated[i/8] ^= 1 << (i % 8)
		assert.False(t, Verify(payload, Prefix+string(mutated), secret), "tag bit %d", i)
	}
}
