package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/filswan/go-mcs-sdk/mcs/api/bucket"
	"github.com/filswan/go-mcs-sdk/mcs/api/user"
	"github.com/filswan/go-swan-lib/logs"

	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/models"
)

// Bucket is the subset of an MCS bucket client the archive needs.
type Bucket interface {
	Upload(objectName, filePath string) (payloadCid string, err error)
}

// Archive writes invoices as JSON files and copies them to an MCS bucket.
type Archive struct {
	bucket     Bucket
	cachePath  string
	gatewayUrl string
}

func New(b Bucket, cachePath, gatewayUrl string) (*Archive, error) {
	if err := os.MkdirAll(cachePath, 0755); err != nil {
		return nil, fmt.Errorf("create archive cache %s: %w", cachePath, err)
	}
	return &Archive{bucket: b, cachePath: cachePath, gatewayUrl: strings.TrimRight(gatewayUrl, "/")}, nil
}

func NewFromConfig(c conf.MCS) (*Archive, error) {
	return New(&mcsBucket{
		apiKey:      c.ApiKey,
		accessToken: c.AccessToken,
		network:     c.Network,
		bucketName:  c.BucketName,
	}, c.FileCachePath, c.GatewayUrl)
}

// ArchiveInvoice uploads invoices/<id>.json and returns its gateway URL.
func (a *Archive) ArchiveInvoice(inv *models.Invoice) (string, error) {
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", err
	}
	objectName := "invoices/" + inv.Id + ".json"
	filePath := filepath.Join(a.cachePath, inv.Id+".json")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("write invoice file: %w", err)
	}

	cid, err := a.bucket.Upload(objectName, filePath)
	if err != nil {
		return "", err
	}
	logs.GetLogger().Infof("invoice %s archived, cid: %s", inv.Id, cid)
	return a.gatewayUrl + "/ipfs/" + cid, nil
}

type mcsBucket struct {
	apiKey      string
	accessToken string
	network     string
	bucketName  string
}

func (m *mcsBucket) Upload(objectName, filePath string) (string, error) {
	mcsClient, err := user.LoginByApikey(m.apiKey, m.accessToken, m.network)
	if err != nil {
		return "", fmt.Errorf("login to mcs: %w", err)
	}
	bucketClient := bucket.GetBucketClient(*mcsClient)

	file, err := bucketClient.GetFile(m.bucketName, objectName)
	if err != nil && !strings.Contains(err.Error(), "record not found") {
		return "", fmt.Errorf("get file from bucket: %w", err)
	}
	if file != nil {
		if err = bucketClient.DeleteFile(m.bucketName, objectName); err != nil {
			return "", fmt.Errorf("delete file from bucket: %w", err)
		}
	}

	if err := bucketClient.UploadFile(m.bucketName, objectName, filePath, true); err != nil {
		return "", fmt.Errorf("upload file to bucket: %w", err)
	}

	ossFile, err := bucketClient.GetFile(m.bucketName, objectName)
	if err != nil {
		return "", fmt.Errorf("get file from bucket: %w", err)
	}
	return ossFile.PayloadCid, nil
}
