package archive

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/internal/models"
)

type fakeBucket struct {
	objects map[string][]byte
	err     error
}

func (f *fakeBucket) Upload(objectName, filePath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	f.objects[objectName] = data
	return "bafy" + objectName[len("invoices/"):], nil
}

func TestArchiveInvoice(t *testing.T) {
	b := &fakeBucket{objects: map[string][]byte{}}
	a, err := New(b, t.TempDir(), "https://gateway.example/")
	require.NoError(t, err)

	inv := &models.Invoice{Id: "inv_1", AccountId: "acct_1", Total: decimal.RequireFromString("1.5"), Currency: "USDC"}
	url, err := a.ArchiveInvoice(inv)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example/ipfs/bafyinv_1.json", url)

	var stored models.Invoice
	require.NoError(t, json.Unmarshal(b.objects["invoices/inv_1.json"], &stored))
	assert.Equal(t, "acct_1", stored.AccountId)
	assert.True(t, stored.Total.Equal(inv.Total))

	b.err = errors.New("bucket offline")
	_, err = a.ArchiveInvoice(inv)
	assert.Error(t, err)
}
