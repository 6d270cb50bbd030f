package wallet

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/xerrors"
)

var ErrSignatureMismatch = fmt.Errorf("signature does not match wallet address")

// SignatureMessage is the payload signed for X-Wallet-Signature.
func SignatureMessage(method, endpoint string, timestamp int64) string {
	return strings.ToUpper(method) + endpoint + strconv.FormatInt(timestamp, 10)
}

// IsEthAddress reports whether addr is a 0x wallet rather than a base58 one.
func IsEthAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")
}

// Sign signs the keccak256 hash of msg with a hex secp256k1 private key.
func Sign(privatekey string, msg []byte) ([]byte, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return nil, err
	}
	hash := crypto.Keccak256Hash(msg)
	return crypto.Sign(hash.Bytes(), privateKey)
}

// RecoverAddress returns the 0x address that produced sig over msg.
func RecoverAddress(msg, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", xerrors.Errorf("invalid signature length %d", len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(crypto.Keccak256Hash(msg).Bytes(), s)
	if err != nil {
		return "", xerrors.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SignEd25519 signs msg with a base58 solana private key.
func SignEd25519(privatekey string, msg []byte) ([]byte, error) {
	pk, err := solana.PrivateKeyFromBase58(privatekey)
	if err != nil {
		return nil, err
	}
	sig, err := pk.Sign(msg)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// VerifySignature checks an X-Wallet-Signature value. 0x wallets carry a hex
// secp256k1 signature checked by recovery, other wallets are base58 ed25519
// keys with a base64 signature.
func VerifySignature(walletAddress, signature string, msg []byte) error {
	if IsEthAddress(walletAddress) {
		sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(signature, "0x"), "0X"))
		if err != nil {
			return xerrors.Errorf("decoding signature: %w", err)
		}
		addr, err := RecoverAddress(msg, sig)
		if err != nil {
			return err
		}
		if !strings.EqualFold(addr, walletAddress) {
			return ErrSignatureMismatch
		}
		return nil
	}

	pub, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return xerrors.Errorf("decoding wallet address: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return xerrors.Errorf("decoding signature: %w", err)
	}
	if len(raw) != len(solana.Signature{}) {
		return xerrors.Errorf("invalid signature length %d", len(raw))
	}
	var sig solana.Signature
	copy(sig[:], raw)
	if !sig.Verify(pub, msg) {
		return ErrSignatureMismatch
	}
	return nil
}

// EncodeSignature renders sig the way VerifySignature expects it for walletAddress.
func EncodeSignature(walletAddress string, sig []byte) string {
	if IsEthAddress(walletAddress) {
		return hexutil.Encode(sig)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// ToPublic converts private key to public key
func ToPublic(priv string) (string, *ecdsa.PublicKey, error) {
	if len(strings.TrimSpace(priv)) == 0 {
		return "", nil, fmt.Errorf("invalid private key")
	}

	privateKeyBytes, err := hex.DecodeString(strings.TrimPrefix(priv, "0x"))
	if err != nil {
		return "", nil, err
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return "", nil, err
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", nil, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}

	publicKeyBytes := crypto.FromECDSAPub(publicKeyECDSA)
	return hexutil.Encode(publicKeyBytes)[4:], publicKeyECDSA, nil
}
