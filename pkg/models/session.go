package models

// Step is the position of a sender in the faucet conversation.
type Step int

const (
	// StepNew is the start of the flow. A missing session means the same thing.
	StepNew Step = 0
	// StepAwaitingNetwork means the menu was sent and the next input names a network.
	StepAwaitingNetwork Step = 1
)

// Known reports whether the step has a handler.
func (s Step) Known() bool {
	return s == StepNew || s == StepAwaitingNetwork
}

// String returns the state name used in logs.
func (s Step) String() string {
	switch s {
	case StepNew:
		return "new"
	case StepAwaitingNetwork:
		return "awaiting_network"
	default:
		return "unknown"
	}
}

// Message is one inbound message from a conversation.
type Message struct {
	Content       string `json:"content"`
	SenderAddress string `json:"senderAddress"`
}
