package interconnect

import (
	"github.com/pion/dtls/v2"
	"github.com/pion/srtp/v2"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// dtlsSRTPLabel is the RFC 5764 keying-material export label (§4.4.2).
const dtlsSRTPLabel = "EXTRACTOR-dtls_srtp"

// offeredSRTPProfiles is the use_srtp extension's offered profile list, in
// preference order; the DTLS stack picks whichever the peer also supports
// (§4.4.2).
var offeredSRTPProfiles = []dtls.SRTPProtectionProfile{
	dtls.SRTP_AEAD_AES_128_GCM,
	dtls.SRTP_AEAD_AES_256_GCM,
	dtls.SRTP_AES128_CM_HMAC_SHA1_80,
	dtls.SRTP_AES128_CM_HMAC_SHA1_32,
}

// profileSize is a (key length, salt length) pair in bytes.
type profileSize struct {
	keyLen, saltLen int
}

// srtpProfileSizes is the key/salt sizing table of §4.4.2, keyed by the
// pion/srtp protection profile the negotiated DTLS profile maps onto.
var srtpProfileSizes = map[srtp.ProtectionProfile]profileSize{
	srtp.ProtectionProfileAes128CmHmacSha1_80: {keyLen: 16, saltLen: 14},
	srtp.ProtectionProfileAes128CmHmacSha1_32: {keyLen: 16, saltLen: 14},
	srtp.ProtectionProfileAeadAes128Gcm:       {keyLen: 16, saltLen: 12},
	srtp.ProtectionProfileAeadAes256Gcm:       {keyLen: 32, saltLen: 12},
}

// dtlsToSRTPProfile maps the negotiated DTLS use_srtp profile onto the
// pion/srtp protection profile that implements it.
var dtlsToSRTPProfile = map[dtls.SRTPProtectionProfile]srtp.ProtectionProfile{
	dtls.SRTP_AES128_CM_HMAC_SHA1_80: srtp.ProtectionProfileAes128CmHmacSha1_80,
	dtls.SRTP_AES128_CM_HMAC_SHA1_32: srtp.ProtectionProfileAes128CmHmacSha1_32,
	dtls.SRTP_AEAD_AES_128_GCM:       srtp.ProtectionProfileAeadAes128Gcm,
	dtls.SRTP_AEAD_AES_256_GCM:       srtp.ProtectionProfileAeadAes256Gcm,
}

// keyingMaterialExporter is the subset of dtls.State this package needs;
// named so tests can fake it without a real handshake.
type keyingMaterialExporter interface {
	ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error)
}

// keyMaterial holds the four SRTP key/salt components exported from one
// DTLS association, split in the order §4.4.2 specifies.
type keyMaterial struct {
	clientKey, serverKey, clientSalt, serverSalt []byte
}

// deriveKeyMaterial exports and splits the keying material for profile.
func deriveKeyMaterial(exporter keyingMaterialExporter, profile srtp.ProtectionProfile) (keyMaterial, error) {
	size, ok := srtpProfileSizes[profile]
	if !ok {
		return keyMaterial{}, ferrors.New("interconnect.deriveKeyMaterial", ferrors.CodeCryptoKeyDerivationFailed,
			errUnsupportedProfile{profile})
	}

	total := 2 * (size.keyLen + size.saltLen)
	material, err := exporter.ExportKeyingMaterial(dtlsSRTPLabel, nil, total)
	if err != nil {
		return keyMaterial{}, ferrors.New("interconnect.deriveKeyMaterial", ferrors.CodeCryptoKeyDerivationFailed, err)
	}

	offset := 0
	next := func(n int) []byte {
		b := material[offset : offset+n]
		offset += n
		return b
	}

	return keyMaterial{
		clientKey:  next(size.keyLen),
		serverKey:  next(size.keyLen),
		clientSalt: next(size.saltLen),
		serverSalt: next(size.saltLen),
	}, nil
}

// localKeys returns (encryptKey, encryptSalt, decryptKey, decryptSalt) for
// this side of the association, per the active/passive role mapping of
// §4.4.3.
func (k keyMaterial) localKeys(active bool) (encKey, encSalt, decKey, decSalt []byte) {
	if active {
		return k.clientKey, k.clientSalt, k.serverKey, k.serverSalt
	}
	return k.serverKey, k.serverSalt, k.clientKey, k.clientSalt
}

type errUnsupportedProfile struct{ profile srtp.ProtectionProfile }

func (e errUnsupportedProfile) Error() string {
	return "unsupported SRTP protection profile"
}
