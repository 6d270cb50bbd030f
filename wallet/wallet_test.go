package wallet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(t *testing.T) *LocalWallet {
	ks, err := OpenOrInitKeystore(filepath.Join(t.TempDir(), WalletRepo))
	require.NoError(t, err)
	t.Cleanup(func() { ks.Close() })
	w, err := NewWallet(ks)
	require.NoError(t, err)
	return w
}

func TestSignatureMessage(t *testing.T) {
	assert.Equal(t, "POST/tasks1700000000", SignatureMessage("post", "/tasks", 1700000000))
}

func TestSecp256k1SignAndVerify(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t)
	addr, err := w.WalletNew(ctx, KTSecp256k1)
	require.NoError(t, err)
	assert.True(t, IsEthAddress(addr))

	msg := []byte(SignatureMessage("GET", "/wallet/balance", 1700000000))
	sig, err := w.WalletSign(ctx, addr, msg)
	require.NoError(t, err)
	assert.Equal(t, "0x", sig[:2])

	require.NoError(t, VerifySignature(addr, sig, msg))
	assert.ErrorIs(t, VerifySignature(addr, sig, []byte("GET/wallet/balance1700000001")), ErrSignatureMismatch)

	other, err := w.WalletNew(ctx, KTSecp256k1)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifySignature(other, sig, msg), ErrSignatureMismatch)

	ok, err := w.WalletVerify(ctx, addr, sig, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, VerifySignature(addr, "0x1234", msg))
}

func TestEd25519SignAndVerify(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t)
	addr, err := w.WalletNew(ctx, KTEd25519)
	require.NoError(t, err)
	assert.False(t, IsEthAddress(addr))

	msg := []byte(SignatureMessage("POST", "/tasks", 1700000000))
	sig, err := w.WalletSign(ctx, addr, msg)
	require.NoError(t, err)

	require.NoError(t, VerifySignature(addr, sig, msg))
	assert.ErrorIs(t, VerifySignature(addr, sig, []byte("tampered")), ErrSignatureMismatch)
	assert.Error(t, VerifySignature(addr, "not base64!", msg))
	assert.Error(t, VerifySignature("not-a-key", sig, msg))
}

func TestWalletImportExportDelete(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t)
	addr, err := w.WalletNew(ctx, KTSecp256k1)
	require.NoError(t, err)

	ki, err := w.WalletExport(ctx, addr)
	require.NoError(t, err)

	_, err = w.WalletImport(ctx, ki)
	assert.ErrorIs(t, err, ErrKeyExists)

	require.NoError(t, w.WalletDelete(ctx, addr))
	list, err := w.WalletList(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	imported, err := w.WalletImport(ctx, &KeyInfo{PrivateKey: ki.PrivateKey})
	require.NoError(t, err)
	assert.Equal(t, addr, imported)

	list, err = w.WalletList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, KTSecp256k1, list[0].Type)

	_, err = w.WalletSign(ctx, "0x0000000000000000000000000000000000000000", []byte("x"))
	assert.ErrorIs(t, err, ErrKeyInfoNotFound)
}
