package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/command"
)

// CommandHandler receives the commands parsed from one message.
type CommandHandler func(cmds []command.Command)

// CommandMessage is the JSON body accepted on TopicCommand, e.g.
// {"command":"set_point","args":[25]}.
type CommandMessage struct {
	Command string    `json:"command"`
	Args    []float64 `json:"args"`
}

// ParseCommand decodes a command message and converts it to commands.
func ParseCommand(payload []byte) ([]command.Command, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	cmds, err := command.Parse(msg.Command, msg.Args)
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// MessageHandler adapts handler to paho. Malformed messages are logged and
// dropped.
func MessageHandler(handler CommandHandler, log *zap.SugaredLogger) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		cmds, err := ParseCommand(m.Payload())
		if err != nil {
			log.Warnw("rejected command", "topic", m.Topic(), "payload", string(m.Payload()), "error", err)
			return
		}
		log.Infow("received command", "topic", m.Topic(), "commands", len(cmds))
		handler(cmds)
	}
}

// Subscribe registers handler for TopicCommand on client.
func Subscribe(client paho.Client, handler CommandHandler, log *zap.SugaredLogger) error {
	token := client.Subscribe(TopicCommand, 1, MessageHandler(handler, log))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", TopicCommand)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicCommand, err)
	}
	return nil
}
