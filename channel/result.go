package channel

import "github.com/oriys/fabric/message"

// ExecutionResult is the success half of a channel run's outcome.
// DestinationResults holds, per destination name, whatever value its
// DestinationFunc returned; a destination skipped via the skip set or a
// preprocessor short-circuit is simply absent from the map. Message is the
// final exported state of the run's context.
type ExecutionResult struct {
	Message             *message.Message
	DestinationResults  map[string]interface{}
}
