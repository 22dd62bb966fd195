package engine

import "context"

// Engine is a chat completion backend. It receives an ordered list of
// role-tagged messages and returns the assistant's reply text. An empty
// reply is a valid result.
type Engine interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Func adapts an ordinary function to the Engine interface.
type Func func(ctx context.Context, messages []Message) (string, error)

func (f Func) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// Pinger is implemented by remote engines that can check reachability
// without spending a completion.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Puller is implemented by engines backed by a local model server that can
// report and download models.
type Puller interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
