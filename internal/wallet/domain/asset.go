package domain

import "github.com/shopspring/decimal"

// ChannelInfo describes the Lightning channel backing an asset.
type ChannelInfo struct {
	Active       bool            `json:"active"`
	Capacity     decimal.Decimal `json:"capacity"`
	LocalBalance decimal.Decimal `json:"local_balance"`
	PeerPubkey   string          `json:"peer_pubkey"`
}

// Asset is a taproot asset visible to the wallet, with the user's balance.
// The collection is a daemon-authoritative snapshot replaced wholesale on
// every successful asset fetch; assets are never merged partially.
type Asset struct {
	AssetID     string          `json:"asset_id"`
	Name        string          `json:"name"`
	ChannelInfo *ChannelInfo    `json:"channel_info,omitempty"`
	UserBalance decimal.Decimal `json:"user_balance"`
}

// FilterChannelAssets keeps only channel-backed assets, the subset the
// wallet can actually send or receive over Lightning.
func FilterChannelAssets(assets []Asset) []Asset {
	filtered := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.ChannelInfo != nil {
			filtered = append(filtered, asset)
		}
	}
	return filtered
}

// AssetName returns the display name for an asset id, falling back to the
// id itself when the asset is unknown.
func AssetName(assets []Asset, assetID string) string {
	for _, asset := range assets {
		if asset.AssetID == assetID {
			if asset.Name != "" {
				return asset.Name
			}
			break
		}
	}
	return assetID
}
