package keypair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerify(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	message := []byte("append this message")
	sig := kp.Sign(message)

	require.True(t, Verify(kp.Public, message, sig))
	require.False(t, Verify(kp.Public, []byte("a different message"), sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := Generate()
	require.NoError(t, err)
	kp2, err := Generate()
	require.NoError(t, err)

	message := []byte("signed by kp1")
	sig := kp1.Sign(message)

	require.False(t, Verify(kp2.Public, message, sig))
}

func TestDeriveFromPasswordIsDeterministic(t *testing.T) {
	salt := []byte("a fixed salt value..............")
	password := []byte("correct horse battery staple")

	kp1 := DeriveFromPassword(salt, password)
	kp2 := DeriveFromPassword(salt, password)

	require.Equal(t, kp1.Public, kp2.Public)
	require.Equal(t, kp1.Private, kp2.Private)
}

func TestDeriveFromPasswordVariesWithSalt(t *testing.T) {
	password := []byte("correct horse battery staple")

	kp1 := DeriveFromPassword([]byte("salt-one........................"), password)
	kp2 := DeriveFromPassword([]byte("salt-two........................"), password)

	require.NotEqual(t, kp1.Public, kp2.Public)
}

func TestHashIsDeterministicAndSensitiveToInput(t *testing.T) {
	h1 := Hash([]byte("message a"))
	h2 := Hash([]byte("message a"))
	h3 := Hash([]byte("message b"))

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}
