package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/xerrors"
)

const (
	WalletRepo  = "keystore"
	KNamePrefix = "wallet-"
)

var (
	ErrKeyInfoNotFound = fmt.Errorf("key info not found")
	ErrKeyExists       = fmt.Errorf("key already exists")
)

// SetupWallet opens the keystore under repoPath, or dir itself when it is absolute.
func SetupWallet(repoPath, dir string) (*LocalWallet, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoPath, dir)
	}
	kstore, err := OpenOrInitKeystore(dir)
	if err != nil {
		return nil, err
	}
	return NewWallet(kstore)
}

type LocalWallet struct {
	keys     map[string]*KeyInfo
	keystore KeyStore

	lk sync.Mutex
}

func NewWallet(keystore KeyStore) (*LocalWallet, error) {
	w := &LocalWallet{
		keys:     make(map[string]*KeyInfo),
		keystore: keystore,
	}
	return w, nil
}

// WalletSign signs msg with the key of addr and returns the encoded signature.
func (w *LocalWallet) WalletSign(ctx context.Context, addr string, msg []byte) (string, error) {
	ki, err := w.findKey(addr)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("signing using private key '%s': %w", addr, ErrKeyInfoNotFound)
	}

	var sig []byte
	switch ki.Type {
	case KTEd25519:
		sig, err = SignEd25519(ki.PrivateKey, msg)
	default:
		sig, err = Sign(ki.PrivateKey, msg)
	}
	if err != nil {
		return "", err
	}
	return EncodeSignature(addr, sig), nil
}

func (w *LocalWallet) WalletVerify(ctx context.Context, addr string, signature string, msg []byte) (bool, error) {
	if err := VerifySignature(addr, signature, msg); err != nil {
		if xerrors.Is(err, ErrSignatureMismatch) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *LocalWallet) findKey(addr string) (*KeyInfo, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	k, ok := w.keys[addr]
	if ok {
		return k, nil
	}
	if w.keystore == nil {
		return nil, nil
	}

	ki, err := w.keystore.Get(KNamePrefix + addr)
	if err != nil {
		if xerrors.Is(err, ErrKeyInfoNotFound) {
			return nil, nil
		}
		return nil, xerrors.Errorf("getting from keystore: %w", err)
	}

	w.keys[addr] = &ki
	return &ki, nil
}

func (w *LocalWallet) WalletExport(ctx context.Context, addr string) (*KeyInfo, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to find key to export: %w", err)
	}
	if k == nil {
		return nil, xerrors.Errorf("private key not found for %s", addr)
	}
	return k, nil
}

// addressOf derives the wallet address a key signs for.
func addressOf(ki *KeyInfo) (string, error) {
	if ki.Type == KTEd25519 {
		pk, err := solana.PrivateKeyFromBase58(ki.PrivateKey)
		if err != nil {
			return "", err
		}
		return pk.PublicKey().String(), nil
	}
	_, publicKeyECDSA, err := ToPublic(ki.PrivateKey)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*publicKeyECDSA).Hex(), nil
}

func (w *LocalWallet) WalletImport(ctx context.Context, ki *KeyInfo) (string, error) {
	if ki == nil || len(strings.TrimSpace(ki.PrivateKey)) == 0 {
		return "", fmt.Errorf("not found private key")
	}
	if ki.Type == "" {
		ki.Type = KTSecp256k1
	}
	address, err := addressOf(ki)
	if err != nil {
		return "", err
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	if _, err := w.keystore.Get(KNamePrefix + address); err == nil {
		return "", ErrKeyExists
	}
	if err := w.keystore.Put(KNamePrefix+address, *ki); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = ki
	return address, nil
}

func (w *LocalWallet) WalletNew(ctx context.Context, keyType KeyType) (string, error) {
	var ki KeyInfo
	switch keyType {
	case KTEd25519:
		pk, err := solana.NewRandomPrivateKey()
		if err != nil {
			return "", err
		}
		ki = KeyInfo{Type: KTEd25519, PrivateKey: pk.String()}
	case KTSecp256k1, "":
		privateK, err := crypto.GenerateKey()
		if err != nil {
			return "", err
		}
		ki = KeyInfo{Type: KTSecp256k1, PrivateKey: hexutil.Encode(crypto.FromECDSA(privateK))[2:]}
	default:
		return "", xerrors.Errorf("unknown key type %s", keyType)
	}
	address, err := addressOf(&ki)
	if err != nil {
		return "", err
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	if err := w.keystore.Put(KNamePrefix+address, ki); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = &ki
	return address, nil
}

func (w *LocalWallet) WalletDelete(ctx context.Context, addr string) error {
	k, err := w.findKey(addr)
	if err != nil {
		return xerrors.Errorf("failed to delete key %s : %w", addr, err)
	}
	if k == nil {
		return nil // already not there
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	if err := w.keystore.Delete(KNamePrefix + addr); err != nil {
		return xerrors.Errorf("wallet delete: %w", err)
	}
	delete(w.keys, addr)
	return nil
}

// WalletList returns the stored addresses with their key types.
func (w *LocalWallet) WalletList(ctx context.Context) ([]WalletEntry, error) {
	all, err := w.keystore.List()
	if err != nil {
		return nil, xerrors.Errorf("listing keystore: %w", err)
	}

	var entries []WalletEntry
	for _, a := range all {
		if !strings.HasPrefix(a, KNamePrefix) {
			continue
		}
		addr := strings.TrimPrefix(a, KNamePrefix)
		ki, err := w.findKey(addr)
		if err != nil || ki == nil {
			continue
		}
		entries = append(entries, WalletEntry{Address: addr, Type: ki.Type})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries, nil
}

type WalletEntry struct {
	Address string
	Type    KeyType
}
