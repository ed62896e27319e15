package codec

import (
	"encoding/json"
	"time"

	"mdchat/internal/chaterr"
)

// Message is the payload of a MessageRecv command: an accepted,
// already-logged chat message.
type Message struct {
	Sender   string    `json:"sender"`
	DateTime time.Time `json:"date_time"`
	Text     string    `json:"text"`
}

// Command is any client<->server command carried inside a frame.
type Command interface {
	commandType() string
}

// Login is a client->server request to authenticate or register.
type Login struct {
	IsRegistering bool
	Nickname      string
	Password      string
}

func (Login) commandType() string { return "login" }

// SendMessage is a client->server request to broadcast text.
type SendMessage struct {
	Text string
}

func (SendMessage) commandType() string { return "send_message" }

// LoginSuccess is sent once a Session transitions to Authenticated.
type LoginSuccess struct{}

func (LoginSuccess) commandType() string { return "login_success" }

// MessageRecv delivers one logged message to an authenticated client.
type MessageRecv struct {
	Message Message
}

func (MessageRecv) commandType() string { return "message_recv" }

// Warning is advisory; the connection stays usable afterward.
type Warning struct {
	Description string
}

func (Warning) commandType() string { return "warning" }

// Error is fatal for the connection; the peer must expect a reset.
type Error struct {
	Description string
}

func (Error) commandType() string { return "error" }

// envelope is the on-the-wire JSON shape: a "type" discriminator plus
// every field any command variant might carry, left empty otherwise.
type envelope struct {
	Type          string   `json:"type"`
	IsRegistering bool     `json:"is_registering,omitempty"`
	Nickname      string   `json:"nickname,omitempty"`
	Password      string   `json:"password,omitempty"`
	Text          string   `json:"text,omitempty"`
	Message       *Message `json:"message,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// EncodeCommand renders cmd as the UTF-8 JSON payload that gets
// encrypted and framed.
func EncodeCommand(cmd Command) ([]byte, error) {
	var env envelope
	env.Type = cmd.commandType()
	switch c := cmd.(type) {
	case Login:
		env.IsRegistering = c.IsRegistering
		env.Nickname = c.Nickname
		env.Password = c.Password
	case SendMessage:
		env.Text = c.Text
	case LoginSuccess:
	case MessageRecv:
		m := c.Message
		env.Message = &m
	case Warning:
		env.Description = c.Description
	case Error:
		env.Description = c.Description
	default:
		return nil, chaterr.Wrap(chaterr.ErrInvalidInput, errUnknownCommand)
	}
	return json.Marshal(env)
}

var errUnknownCommand = jsonErr("unknown command type")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

// DecodeCommand parses plaintext payload bytes (already decrypted)
// into a Command. Any structural or unknown-tag failure surfaces as
// chaterr.ErrInvalidData.
func DecodeCommand(payload []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, chaterr.Wrap(chaterr.ErrInvalidData, err)
	}
	switch env.Type {
	case "login":
		return Login{IsRegistering: env.IsRegistering, Nickname: env.Nickname, Password: env.Password}, nil
	case "send_message":
		return SendMessage{Text: env.Text}, nil
	case "login_success":
		return LoginSuccess{}, nil
	case "message_recv":
		if env.Message == nil {
			return nil, chaterr.Wrap(chaterr.ErrInvalidData, errUnknownCommand)
		}
		return MessageRecv{Message: *env.Message}, nil
	case "warning":
		return Warning{Description: env.Description}, nil
	case "error":
		return Error{Description: env.Description}, nil
	default:
		return nil, chaterr.Wrap(chaterr.ErrInvalidData, errUnknownCommand)
	}
}
