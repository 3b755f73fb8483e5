// Package live manages the single bidirectional session to the remote
// transcription service. A Session is usable immediately after Dial:
// payloads sent before the connection resolves queue in order and flush
// once it is open.
package live

import "murmur/pcm"

// AudioFormat is declared to the service when the session opens.
const AudioFormat = "pcm;rate=16000"

// Config declares the session parameters for the setup message.
type Config struct {
	Endpoint string
	APIKey   string
}

// Update is one recognized inbound event. The service may deliver text
// and a turn boundary in the same message; text precedes the boundary.
type Update struct {
	Text         string
	TurnComplete bool
}

func (u Update) empty() bool {
	return u.Text == "" && !u.TurnComplete
}

// setup is the first client message on a new connection. The audio
// response modality must be declared per protocol even though any audio
// the service returns is discarded.
type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	AudioFormat        string   `json:"audioFormat"`
	InputTranscription bool     `json:"inputTranscription"`
	ResponseModalities []string `json:"responseModalities"`
}

func newSetupMessage() setupMessage {
	return setupMessage{Setup: setupPayload{
		AudioFormat:        AudioFormat,
		InputTranscription: true,
		ResponseModalities: []string{"AUDIO"},
	}}
}

type mediaMessage struct {
	Media mediaPayload `json:"media"`
}

type mediaPayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func newMediaMessage(payload string) mediaMessage {
	return mediaMessage{Media: mediaPayload{Data: payload, MimeType: pcm.MimeType}}
}

// serverMessage is the inbound envelope. Only inputTranscription text and
// turnComplete are consumed; every other field is ignored.
type serverMessage struct {
	ServerContent *serverContent `json:"serverContent"`
}

type serverContent struct {
	InputTranscription *inputTranscription `json:"inputTranscription"`
	TurnComplete       bool                `json:"turnComplete"`
}

type inputTranscription struct {
	Text string `json:"text"`
}

func (m serverMessage) update() Update {
	if m.ServerContent == nil {
		return Update{}
	}
	u := Update{TurnComplete: m.ServerContent.TurnComplete}
	if m.ServerContent.InputTranscription != nil {
		u.Text = m.ServerContent.InputTranscription.Text
	}
	return u
}
