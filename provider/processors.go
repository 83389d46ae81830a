package provider

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"inlinecomplete/stream"
	"inlinecomplete/types"
)

// Decoder folds one message into the completion text received so far and
// reports whether the backend signalled the end of the completion.
type Decoder func(msg stream.Message, completion string) (next string, done bool, err error)

// DecodeTextDelta decodes OpenAI-style frames where each choice carries the
// next piece of text.
func DecodeTextDelta(msg stream.Message, completion string) (string, bool, error) {
	if !gjson.Valid(msg.Data) {
		return completion, false, &types.ProtocolError{Message: "payload is not JSON: " + truncate(msg.Data)}
	}
	choice := gjson.Get(msg.Data, "choices.0")
	if !choice.Exists() {
		return completion, false, nil
	}
	completion += choice.Get("text").String()
	return completion, choice.Get("finish_reason").String() != "", nil
}

// DecodeCumulative decodes gateway frames: `completion` events carry the
// full text so far and `done` ends the stream.
func DecodeCumulative(msg stream.Message, completion string) (string, bool, error) {
	switch msg.Event {
	case stream.EventCompletion:
		if !gjson.Valid(msg.Data) {
			return completion, false, &types.ProtocolError{Message: "payload is not JSON: " + truncate(msg.Data)}
		}
		text := gjson.Get(msg.Data, "completion")
		if !text.Exists() {
			return completion, false, &types.ProtocolError{Message: "completion frame without completion"}
		}
		return text.String(), false, nil
	case "done":
		return completion, true, nil
	default:
		return completion, false, nil
	}
}

func truncate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
