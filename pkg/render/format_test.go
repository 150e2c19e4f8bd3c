package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

func TestAbbrev(t *testing.T) {
	assert.Equal(t, "So11...1112", Abbrev("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "short", Abbrev("short"))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1234", FormatPrice(1234.5))
	assert.Equal(t, "1.23", FormatPrice(1.234))
	assert.Equal(t, "0.0457", FormatPrice(0.04567))
	assert.Equal(t, "1.23e-05", FormatPrice(0.0000123))
}

func TestFormatTransferBatch_Overflow(t *testing.T) {
	transfers := []vybe.Transfer{
		{Signature: "sig1", SenderAddress: "w", ReceiverAddress: "x", Symbol: "SOL", Amount: 1},
		{Signature: "sig2", SenderAddress: "y", ReceiverAddress: "w", Symbol: "SOL", Amount: 2},
		{Signature: "sig3", SenderAddress: "w", ReceiverAddress: "z", Symbol: "SOL", Amount: 3},
	}

	msg := FormatTransferBatch("w", "", transfers, 2)
	assert.Contains(t, msg, "sig1")
	assert.Contains(t, msg, "sig2")
	assert.NotContains(t, msg, "sig3")
	assert.Contains(t, msg, "1 more transfer")
}

func TestFormatTransferBatch_Directions(t *testing.T) {
	msg := FormatTransferBatch("w", "whale", []vybe.Transfer{
		{Signature: "sig1", SenderAddress: "w", ReceiverAddress: "x", Symbol: "SOL", Amount: 1},
	}, 5)
	assert.Contains(t, msg, "whale")
	assert.Contains(t, msg, "sent")

	msg = FormatTransferBatch("w", "", []vybe.Transfer{
		{Signature: "sig1", SenderAddress: "y", ReceiverAddress: "w", Symbol: "SOL", Amount: 1},
	}, 5)
	assert.Contains(t, msg, "received")
}

func TestFormatTargetAlert(t *testing.T) {
	above := FormatTargetAlert(db.PriceAlert{MintAddress: "m", TargetPrice: 1.03, IsAboveTarget: true}, "JUP", 1.05)
	assert.Contains(t, above, "rose above")
	assert.Contains(t, above, "JUP")
	assert.Contains(t, above, "1.03")

	below := FormatTargetAlert(db.PriceAlert{MintAddress: "m", TargetPrice: 0.95}, "JUP", 0.94)
	assert.Contains(t, below, "fell below")
}

func TestFormatKOLChange(t *testing.T) {
	top := db.KOLRank{Rank: 1, OwnerAddress: "Addr1111111111", Name: "whale"}
	msg := FormatKOLChange(&top, []db.KOLRank{{Rank: 5, OwnerAddress: "Addr2222222222"}})
	assert.Contains(t, msg, "New #1")
	assert.Contains(t, msg, "whale")
	assert.Contains(t, msg, "New in top 5")
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a&amp;b &lt;c&gt;", EscapeHTML(`a&b <c>`))
	assert.False(t, strings.ContainsAny(EscapeHTML(`<script>"x"&`), `<>"`))
}
