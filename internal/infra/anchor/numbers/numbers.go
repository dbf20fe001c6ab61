// Package numbers anchors job records on Numbers Protocol through its asset
// registration API.
package numbers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"proofsy/internal/domain"
	"proofsy/internal/infra/anchor"
)

const (
	DefaultAPIBase      = "https://api.numbersprotocol.io/api/v3"
	DefaultExplorerBase = "https://verify.numbersprotocol.io/asset-profile/"
	providerName        = "numbers"
	commitPath          = "/assets/"
	sourceName          = "ProofsyGPU - GPU Job Receipt System"
)

const maxProviderReceiptBytes = 256 * 1024

type Config struct {
	APIBase      string
	APIKey       string
	ExplorerBase string
	Chain        string
}

type Client struct {
	apiBase      string
	apiKey       string
	explorerBase string
	chain        string
	httpDo       func(*http.Request) (*http.Response, error)
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("numbers api key is required")
	}
	apiBase := strings.TrimSpace(cfg.APIBase)
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	explorerBase := strings.TrimSpace(cfg.ExplorerBase)
	if explorerBase == "" {
		explorerBase = DefaultExplorerBase
	}
	chain := strings.TrimSpace(cfg.Chain)
	if chain == "" {
		chain = domain.DefaultChain
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		apiBase:      strings.TrimRight(apiBase, "/"),
		apiKey:       cfg.APIKey,
		explorerBase: explorerBase,
		chain:        chain,
		httpDo:       doer,
	}, nil
}

func (c *Client) ProviderName() string {
	return providerName
}

func (c *Client) Anchor(ctx context.Context, payload anchor.Payload) anchor.Receipt {
	if c == nil {
		return anchor.Failed(providerName, domain.AnchorErrorBadConfig)
	}
	body, contentType, err := buildForm(payload)
	if err != nil {
		return anchor.Failed(providerName, domain.AnchorErrorBadConfig)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+commitPath, bytes.NewReader(body))
	if err != nil {
		return anchor.Failed(providerName, domain.AnchorErrorBadConfig)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return anchor.Failed(providerName, errorToCode(ctx, err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return anchor.Failed(providerName, errorToCode(ctx, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failedReceipt(statusToErrorCode(resp.StatusCode), respBody)
	}

	var asset assetResponse
	if err := json.Unmarshal(respBody, &asset); err != nil {
		return failedReceipt(domain.AnchorErrorProviderError, respBody)
	}
	nid := firstNonEmpty(asset.AssetCID, asset.NID, asset.CID, asset.AssetID)
	if nid == "" {
		return failedReceipt(domain.AnchorErrorProviderError, respBody)
	}
	proof := firstNonEmpty(asset.TransactionHash, asset.TxHash, asset.ProofHash, asset.PostCreationWorkflowID, asset.AssetSHA256)

	receiptJSON, truncated, size := truncateReceiptJSON(respBody)
	return anchor.Receipt{
		AnchorResult: domain.AnchorResult{
			Provider:                 providerName,
			AnchorRef:                nid,
			ProofRef:                 proof,
			ExplorerURL:              c.ExplorerURL(nid),
			Chain:                    c.chain,
			ProviderReceiptJSON:      json.RawMessage(receiptJSON),
			ProviderReceiptTruncated: truncated,
			ProviderReceiptSizeBytes: size,
		},
		Status: domain.AnchorStatusAnchored,
	}
}

// ExplorerURL returns the public asset page for nid.
func (c *Client) ExplorerURL(nid string) string {
	return c.explorerBase + nid + "?nid=" + nid
}

func buildForm(payload anchor.Payload) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="asset_file"; filename="gpu-job-%s.json"`, payload.Record.JobID))
	header.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload.MetadataJSON); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("data", string(payload.DataJSON)); err != nil {
		return nil, "", err
	}
	source, err := json.Marshal(map[string]string{
		"id":   "gpu-job-" + payload.Record.JobID,
		"name": sourceName,
	})
	if err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("source", string(source)); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func failedReceipt(code string, body []byte) anchor.Receipt {
	receipt := anchor.Failed(providerName, code)
	receiptJSON, truncated, size := truncateReceiptJSON(body)
	if len(receiptJSON) > 0 && json.Valid(receiptJSON) {
		receipt.ProviderReceiptJSON = json.RawMessage(receiptJSON)
	}
	receipt.ProviderReceiptTruncated = truncated
	receipt.ProviderReceiptSizeBytes = size
	return receipt
}

func statusToErrorCode(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.AnchorErrorRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.AnchorErrorBadConfig
	case code >= 500:
		return domain.AnchorErrorProvider5xx
	default:
		return domain.AnchorErrorProviderError
	}
}

func errorToCode(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	return domain.AnchorErrorNetwork
}

func truncateReceiptJSON(payload []byte) ([]byte, bool, int) {
	size := len(payload)
	if size == 0 {
		return nil, false, 0
	}
	if size <= maxProviderReceiptBytes {
		return payload, false, size
	}
	sum := sha256.Sum256(payload)
	truncated := map[string]any{
		"truncated":     true,
		"sha256":        hex.EncodeToString(sum[:]),
		"prefix_base64": base64.StdEncoding.EncodeToString(payload[:maxProviderReceiptBytes]),
	}
	encoded, err := json.Marshal(truncated)
	if err != nil {
		return nil, true, size
	}
	return encoded, true, size
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

type assetResponse struct {
	AssetCID               string `json:"assetCid"`
	NID                    string `json:"nid"`
	CID                    string `json:"cid"`
	AssetID                string `json:"asset_id"`
	TransactionHash        string `json:"transaction_hash"`
	TxHash                 string `json:"tx_hash"`
	ProofHash              string `json:"proof_hash"`
	PostCreationWorkflowID string `json:"post_creation_workflow_id"`
	AssetSHA256            string `json:"assetSha256"`
	CreatorWallet          string `json:"creatorWallet"`
}
