package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steveyegge/fixbot/internal/ai"
	"github.com/steveyegge/fixbot/internal/orchestrator"
)

// Orchestrator is what the control socket drives; *orchestrator.Orchestrator
// implements it.
type Orchestrator interface {
	Trigger(ctx context.Context, key string) error
	Override() *ai.PromptOverride
	Status() orchestrator.Status
}

// NewHandler routes commands to orch. clarifier may be nil when clarifications
// are not answered over the socket.
func NewHandler(orch Orchestrator, clarifier *ai.ChannelClarifier) HandlerFunc {
	return func(ctx context.Context, cmd Command) (string, map[string]interface{}, error) {
		switch cmd.Type {
		case CommandProcess:
			key := strings.TrimSpace(cmd.TicketKey)
			if err := orch.Trigger(ctx, key); err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("Processing triggered for ticket: %s", key),
				map[string]interface{}{"ticket_key": key}, nil

		case CommandPromptSet:
			orch.Override().Set(cmd.Prompt)
			prompt := orch.Override().Get()
			if prompt == "" {
				return "Prompt override cleared", nil, nil
			}
			return "Prompt override set", map[string]interface{}{"prompt": prompt}, nil

		case CommandPromptGet:
			return "", map[string]interface{}{"prompt": orch.Override().Get()}, nil

		case CommandPromptConsume:
			return "", map[string]interface{}{"prompt": orch.Override().Consume()}, nil

		case CommandClarify:
			if clarifier == nil {
				return "", nil, fmt.Errorf("clarifications are not answered over the control socket")
			}
			if err := clarifier.Answer(cmd.TicketKey, cmd.Prompt); err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("Clarification delivered for %s", cmd.TicketKey), nil, nil

		case CommandPending:
			var pending []ai.ClarificationRequest
			if clarifier != nil {
				pending = clarifier.Pending()
			}
			data, err := toData(map[string]interface{}{"pending": pending})
			return "", data, err

		case CommandStatus:
			data, err := toData(orch.Status())
			return "", data, err

		default:
			return "", nil, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}

// toData converts v to the generic map carried in a Response.
func toData(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response data: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to encode response data: %w", err)
	}
	return out, nil
}

// DecodeData converts response data back into a typed value.
func DecodeData(data map[string]interface{}, v interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
