package router

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// readDetailArgs is the argument payload of a read_detail call.
type readDetailArgs struct {
	ContainerIndices []int `mapstructure:"container_indices"`
}

// executeEditArgs is the argument payload of an execute_edit call.
type executeEditArgs struct {
	Code string `mapstructure:"code"`
}

// decodeArgs maps a validated argument object onto a typed struct. Weak
// typing is on because JSON numbers arrive as float64.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
