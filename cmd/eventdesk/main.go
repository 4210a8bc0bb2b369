// eventdesk はイベントカタログサービスのコマンドラインクライアント。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/eventdesk/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.StdStreams(), os.Args[1:]); err != nil {
		if !errors.Is(err, app.ErrReported) {
			fmt.Fprintf(os.Stderr, "eventdesk: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
