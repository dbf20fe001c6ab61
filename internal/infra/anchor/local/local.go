// Package local is an offline anchor provider for development and tests. It
// derives content-addressed references from the record hash and never leaves
// the process.
package local

import (
	"context"

	"proofsy/internal/domain"
	"proofsy/internal/infra/anchor"
)

const (
	providerName = "local"
	Chain        = "local-devnet"
)

type Client struct {
	explorerBase string
}

func NewClient(explorerBase string) *Client {
	return &Client{explorerBase: explorerBase}
}

func (c *Client) ProviderName() string {
	return providerName
}

func (c *Client) Anchor(ctx context.Context, payload anchor.Payload) anchor.Receipt {
	if err := ctx.Err(); err != nil {
		return anchor.Failed(providerName, domain.AnchorErrorTimeout)
	}
	if payload.HashHex == "" {
		return anchor.Failed(providerName, domain.AnchorErrorBadConfig)
	}
	ref := "local-" + payload.HashHex[:32]
	result := domain.AnchorResult{
		Provider:  providerName,
		AnchorRef: ref,
		ProofRef:  payload.HashHex,
		Chain:     Chain,
	}
	if c.explorerBase != "" {
		result.ExplorerURL = c.explorerBase + ref + "?nid=" + ref
	}
	return anchor.Receipt{AnchorResult: result, Status: domain.AnchorStatusAnchored}
}
