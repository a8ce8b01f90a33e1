package envelope

import (
	"encoding/json"
	"fmt"
)

// Marshal returns the serialized representation of env.
func Marshal(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	return json.Marshal(env)
}

// MustMarshal returns the serialized representation of env, or panics if it
// can not be marshaled.
func MustMarshal(env *Envelope) []byte {
	data, err := Marshal(env)
	if err != nil {
		panic(err)
	}

	return data
}

// Unmarshal parses a serialized envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope

	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unable to unmarshal envelope: %w", err)
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("unable to unmarshal envelope: %w", err)
	}

	return &env, nil
}
