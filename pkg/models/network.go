// Package models contains domain models for the faucet bot.
package models

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// leadingNumber matches the decimal prefix of a balance such as "10 ETH".
var leadingNumber = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// Network is one supported test network as reported by the faucet service.
type Network struct {
	NetworkID   string `json:"networkId"`
	NetworkName string `json:"networkName"`
	NetworkLogo string `json:"networkLogo"`
	TokenName   string `json:"tokenName"`
	DripAmount  string `json:"dripAmount"`
	Balance     string `json:"balance"`
}

// HasBalance reports whether the faucet still holds funds for this network.
// Only the leading decimal number counts, so "10 ETH" is funded; a balance
// with no leading number, including "inf" and "NaN", counts as empty.
func (n Network) HasBalance() bool {
	return parseBalance(n.Balance) > 0
}

// parseBalance reads the leading decimal number of s, or NaN if there is none.
func parseBalance(s string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	switch m {
	case "":
		return math.NaN()
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	// Out-of-range exponents come back as ±Inf with an error; the value is still right.
	v, _ := strconv.ParseFloat(m, 64)
	return v
}

// CatalogRecord is the cached snapshot of supported networks.
// LastSyncedAt is epoch milliseconds.
type CatalogRecord struct {
	LastSyncedAt      int64     `json:"lastSyncedAt"`
	SupportedNetworks []Network `json:"supportedNetworks"`
}

// NewCatalogRecord stamps a fresh snapshot with the given sync time.
func NewCatalogRecord(networks []Network, syncedAt time.Time) *CatalogRecord {
	if networks == nil {
		networks = []Network{}
	}
	return &CatalogRecord{
		LastSyncedAt:      syncedAt.UnixMilli(),
		SupportedNetworks: networks,
	}
}

// FindNetwork returns the network with the given id.
func FindNetwork(networks []Network, id string) (Network, bool) {
	for _, n := range networks {
		if n.NetworkID == id {
			return n, true
		}
	}
	return Network{}, false
}
