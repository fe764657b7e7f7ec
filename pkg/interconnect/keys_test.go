package interconnect

import (
	"testing"

	"github.com/pion/srtp/v2"
	"github.com/stretchr/testify/require"
)

// fakeExporter satisfies keyingMaterialExporter with deterministic bytes so
// splitting logic can be tested without a real DTLS handshake.
type fakeExporter struct{}

func (fakeExporter) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := range out {
		out[i] = byte(i)
	}
	return out, nil
}

func TestDeriveKeyMaterialSplitsInSpecOrder(t *testing.T) {
	material, err := deriveKeyMaterial(fakeExporter{}, srtp.ProtectionProfileAes128CmHmacSha1_80)
	require.NoError(t, err)

	require.Len(t, material.clientKey, 16)
	require.Len(t, material.serverKey, 16)
	require.Len(t, material.clientSalt, 14)
	require.Len(t, material.serverSalt, 14)

	require.Equal(t, byte(0), material.clientKey[0])
	require.Equal(t, byte(16), material.serverKey[0])
	require.Equal(t, byte(32), material.clientSalt[0])
	require.Equal(t, byte(46), material.serverSalt[0])
}

func TestDeriveKeyMaterialRejectsUnknownProfile(t *testing.T) {
	_, err := deriveKeyMaterial(fakeExporter{}, srtp.ProtectionProfile(0xffff))
	require.Error(t, err)
}

func TestLocalKeysActiveVsPassive(t *testing.T) {
	material, err := deriveKeyMaterial(fakeExporter{}, srtp.ProtectionProfileAeadAes128Gcm)
	require.NoError(t, err)

	encKey, encSalt, decKey, decSalt := material.localKeys(true)
	require.Equal(t, material.clientKey, encKey)
	require.Equal(t, material.clientSalt, encSalt)
	require.Equal(t, material.serverKey, decKey)
	require.Equal(t, material.serverSalt, decSalt)

	encKey, encSalt, decKey, decSalt = material.localKeys(false)
	require.Equal(t, material.serverKey, encKey)
	require.Equal(t, material.serverSalt, encSalt)
	require.Equal(t, material.clientKey, decKey)
	require.Equal(t, material.clientSalt, decSalt)
}
