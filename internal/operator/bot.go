package operator

import (
	"context"

	"github.com/aixgo-dev/synode/internal/graph"
)

// Bot is a single chat model. The handler selects the response mode: empty
// or "plain" for text, "stream" for streamed text, "auto" or "required" to
// offer every declared tool, a tool name to force that tool, or a
// response-format name for schema-constrained output.
type Bot struct {
	decl graph.OperatorDecl
	*chat
}

// NewBot binds decl to a chat provider.
func NewBot(decl graph.OperatorDecl, deps Deps) (*Bot, error) {
	c, err := newChat(decl, deps)
	if err != nil {
		return nil, err
	}
	return &Bot{decl: decl, chat: c}, nil
}

func (b *Bot) Alias() string            { return b.decl.Alias }
func (b *Bot) Kind() graph.OperatorKind { return graph.KindBot }
func (b *Bot) Decl() graph.OperatorDecl { return b.decl }

func (b *Bot) Dispatch(ctx context.Context, call Call) (any, error) {
	return b.complete(ctx, turn{
		mode:         call.Handler,
		instructions: call.Instructions,
		input:        call.Input,
	})
}
