// Command basis encodes speech corpora into per-phone Legendre coefficients,
// trains the context backoff model and predicts features for held-out
// utterances.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
