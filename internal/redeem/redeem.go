// ABOUTME: Cross-bot key redemption with distribution and forwarding policies.
// ABOUTME: Batches walk a registry snapshot cursor; an erroring call aborts the batch.

package redeem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/farmhand-dev/farmhand/internal/bot"
	"github.com/farmhand-dev/farmhand/internal/transport"
)

// ValidKey is the structural check applied when validation is requested:
// a plausible code carries at least two dash separators.
func ValidKey(key string) bool {
	return strings.Count(key, "-") >= 2
}

// Distributor drives redemption batches across the registry.
type Distributor struct {
	registry *bot.Registry
	logger   *slog.Logger
}

// NewDistributor creates a distributor over the given registry.
func NewDistributor(registry *bot.Registry, logger *slog.Logger) *Distributor {
	return &Distributor{
		registry: registry,
		logger:   logger.With("component", "redeem"),
	}
}

// cursor walks a registry snapshot taken at batch start. The owner goes
// first; advancing scans the snapshot from its head, skipping the owner, and
// never wraps. An exhausted cursor has no current bot and ends the batch.
type cursor struct {
	bots    []*bot.Bot
	owner   *bot.Bot
	pos     int
	current *bot.Bot
}

func newCursor(bots []*bot.Bot, owner *bot.Bot) *cursor {
	return &cursor{bots: bots, owner: owner, pos: -1, current: owner}
}

func (c *cursor) advance() {
	for i := c.pos + 1; i < len(c.bots); i++ {
		if c.bots[i] == c.owner {
			continue
		}
		c.pos = i
		c.current = c.bots[i]
		return
	}
	c.pos = len(c.bots)
	c.current = nil
}

// Process redeems a newline-delimited batch of codes received by owner.
// The owner's settings supply the distribution and forwarding flags. The
// returned report is empty when no line reached a terminal classification.
func (d *Distributor) Process(ctx context.Context, owner *bot.Bot, message string, validate bool) string {
	distribute := owner.Settings().DistributeKeys
	forward := owner.Settings().ForwardKeys

	cur := newCursor(d.registry.Snapshot(), owner)

	var report []string

lines:
	for _, line := range strings.Split(message, "\n") {
		key := strings.TrimSpace(line)
		if key == "" {
			continue
		}
		if validate && !ValidKey(key) {
			continue
		}

		target := cur.current
		if target == nil {
			break
		}
		receipt, err := target.RedeemKey(ctx, key)
		if err != nil {
			d.logger.Warn("redemption call failed, aborting batch", "bot", target.Name(), "error", err)
			break
		}

		report = append(report, reportLine(target, key, receipt))

		switch receipt.Result {
		case transport.PurchaseAlreadyOwned, transport.PurchaseBaseGameRequired,
			transport.PurchaseOnCooldown, transport.PurchaseRegionLocked:
			if distribute {
				cur.advance()
			}
			if !forward {
				continue
			}
			for _, other := range cur.bots {
				if other == target {
					continue
				}
				otherReceipt, err := other.RedeemKey(ctx, key)
				if err != nil {
					d.logger.Warn("redemption call failed, aborting batch", "bot", other.Name(), "error", err)
					break lines
				}
				report = append(report, reportLine(other, key, otherReceipt))
				switch otherReceipt.Result {
				case transport.PurchaseOK, transport.PurchaseDuplicatedKey, transport.PurchaseInvalidKey:
					continue lines
				}
			}
		case transport.PurchaseOK:
			if distribute {
				cur.advance()
			}
		case transport.PurchaseDuplicatedKey, transport.PurchaseInvalidKey:
			if !distribute && !forward {
				cur.advance()
			}
		}
	}

	return strings.Join(report, "\n")
}

func reportLine(b *bot.Bot, key string, receipt *transport.PurchaseReceipt) string {
	items := ""
	if len(receipt.Items) > 0 {
		items = strings.Join(receipt.Items, ", ")
	}
	return fmt.Sprintf("<%s> Key: %s | Status: %s | Items: %s", b.Name(), key, receipt.Result.String(), items)
}
