// Package bot implements the faucet conversation: greet the sender, offer the
// supported networks, and dispense test tokens on the chosen one.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/metrics"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/reqid"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/session"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
)

// ResetCommand sends the sender back to the start of the flow.
const ResetCommand = "reset"

// Reply texts.
const (
	GreetingText   = "Hey! I can assist you in obtaining testnet tokens."
	MenuIntroText  = "Here the options you can choose from (make sure to copy and paste the name exactly!):"
	WithBalance    = "✅ With Balance:"
	WithoutBalance = "❌ Without Balance:"
	ProcessingText = "Your testnet tokens are being processed. Please wait a moment for the transaction to process."
	ReceiptText    = "Here's your transaction receipt:"
)

// Replier sends one text reply into the current conversation.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, text string) error

// Reply implements Replier.
func (f ReplierFunc) Reply(ctx context.Context, text string) error { return f(ctx, text) }

// NetworkSource returns the supported networks.
type NetworkSource interface {
	Networks(ctx context.Context) ([]models.Network, error)
}

// Dispenser performs the token drip.
type Dispenser interface {
	DripTokens(ctx context.Context, networkID, recipient string) (models.DripResult, error)
}

// Config holds the orchestrator's static settings.
type Config struct {
	BotAddress   string // messages from this address are ignored
	FrameBaseURL string // receipt link base
}

// Orchestrator drives one conversation step per inbound message.
type Orchestrator struct {
	sessions  session.Store
	catalog   NetworkSource
	dispenser Dispenser
	metrics   *metrics.Metrics
	cfg       Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records message and drip outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(cfg Config, sessions session.Store, catalog NetworkSource, dispenser Dispenser, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		catalog:   catalog,
		dispenser: dispenser,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsSelf reports whether sender is the bot's own address.
func (o *Orchestrator) IsSelf(sender string) bool {
	return o.cfg.BotAddress != "" && strings.EqualFold(sender, o.cfg.BotAddress)
}

// Handle processes one inbound message. Replies are sent in order, each
// completing before the next side effect starts. Errors come only from the
// catalog, the dispenser transport or the replier; business refusals are
// answered with a reply and return nil.
func (o *Orchestrator) Handle(ctx context.Context, msg models.Message, r Replier) (err error) {
	sender := msg.SenderAddress
	logger := reqid.Logger(ctx).With().Str("sender", sender).Logger()

	if o.IsSelf(sender) {
		o.metrics.Message(metrics.OutcomeIgnored)
		return nil
	}

	outcome := metrics.OutcomeHandled
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		o.metrics.Message(outcome)
	}()

	// Reset does not end handling: the same message continues as a new conversation.
	if msg.Content == ResetCommand {
		o.sessions.Set(sender, models.StepNew)
		logger.Debug().Msg("Session reset")
	}

	networks, err := o.catalog.Networks(ctx)
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}

	step, _ := o.sessions.Get(sender)
	logger.Debug().Stringer("step", step).Msg("Handling message")

	switch step {
	case models.StepNew:
		return o.offerNetworks(ctx, sender, networks, r)
	case models.StepAwaitingNetwork:
		return o.chooseNetwork(ctx, msg, networks, r)
	default:
		// No handler exists for this step; the message is absorbed.
		outcome = metrics.OutcomeNoop
		logger.Debug().Int("step", int(step)).Msg("Ignoring message in unknown step")
		return nil
	}
}

func (o *Orchestrator) offerNetworks(ctx context.Context, sender string, networks []models.Network, r Replier) error {
	if err := r.Reply(ctx, GreetingText); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	if err := r.Reply(ctx, MenuText(networks)); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	o.sessions.Set(sender, models.StepAwaitingNetwork)
	return nil
}

func (o *Orchestrator) chooseNetwork(ctx context.Context, msg models.Message, networks []models.Network, r Replier) error {
	sender := msg.SenderAddress
	logger := reqid.Logger(ctx)

	network, ok := models.FindNetwork(networks, NormalizeNetworkInput(msg.Content))
	if !ok {
		o.metrics.UnsupportedNetwork()
		if err := r.Reply(ctx, UnsupportedText(msg.Content)); err != nil {
			return fmt.Errorf("send rejection: %w", err)
		}
		return nil
	}

	if err := r.Reply(ctx, ProcessingText); err != nil {
		return fmt.Errorf("send processing notice: %w", err)
	}

	result, err := o.dispenser.DripTokens(ctx, network.NetworkID, sender)
	if err != nil {
		o.metrics.Drip(metrics.DripError)
		return fmt.Errorf("drip tokens: %w", err)
	}

	// The drip happened; a failed reply below must not let the same choice drip twice.
	o.sessions.Set(sender, models.StepNew)

	if !result.OK {
		o.metrics.Drip(metrics.DripRejected)
		logger.Info().Str("network", network.NetworkID).Str("error", result.Error).Msg("Drip rejected")
		if err := r.Reply(ctx, DripFailedText(result.Error)); err != nil {
			return fmt.Errorf("send drip failure: %w", err)
		}
		return nil
	}

	o.metrics.Drip(metrics.DripOK)
	logger.Info().Str("network", network.NetworkID).Str("recipient", sender).Msg("Tokens dripped")

	if err := r.Reply(ctx, ReceiptText); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	if err := r.Reply(ctx, ReceiptURL(o.cfg.FrameBaseURL, network)); err != nil {
		return fmt.Errorf("send receipt link: %w", err)
	}
	return nil
}

// NormalizeNetworkInput turns free text into a network id candidate:
// trimmed, lowercased, and with the first space replaced by an underscore.
func NormalizeNetworkInput(content string) string {
	return strings.Replace(strings.ToLower(strings.TrimSpace(content)), " ", "_", 1)
}

// MenuText lists the networks split by whether the faucet still has funds.
func MenuText(networks []models.Network) string {
	var with, without []string
	for _, n := range networks {
		line := "- " + n.NetworkID
		if n.HasBalance() {
			with = append(with, line)
		} else {
			without = append(without, line)
		}
	}

	var b strings.Builder
	b.WriteString(MenuIntroText)
	b.WriteString("\n\n")
	b.WriteString(WithBalance)
	b.WriteString("\n")
	b.WriteString(strings.Join(with, "\n"))
	b.WriteString("\n\n")
	b.WriteString(WithoutBalance)
	b.WriteString("\n")
	b.WriteString(strings.Join(without, "\n"))
	return b.String()
}

// UnsupportedText rejects a network choice, quoting the sender's input as typed.
func UnsupportedText(input string) string {
	return fmt.Sprintf("❌ I'm sorry, but I don't support %s at the moment. Can I assist you with a different testnet?", input)
}

// DripFailedText reports a refused drip.
func DripFailedText(reason string) string {
	return fmt.Sprintf("❌ Sorry, there was an error processing your request:\n\n\"%s\"", reason)
}

// ReceiptURL builds the receipt frame link. Values are interpolated as-is,
// without percent-encoding; only the first space of the network name becomes a hyphen.
func ReceiptURL(base string, n models.Network) string {
	return fmt.Sprintf("%s?networkLogo=%s&networkName=%s&tokenName=%s&amount=%s",
		base,
		n.NetworkLogo,
		strings.Replace(n.NetworkName, " ", "-", 1),
		n.TokenName,
		n.DripAmount,
	)
}
