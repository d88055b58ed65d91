package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the governor daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			if !alreadyRunning(a.Config.DataDir) {
				fmt.Println(styleDim.Render("governor not running"))
				return nil
			}

			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			message, err := client.Shutdown(ctx)
			if err != nil {
				fmt.Println(styleError.Render("governor: " + err.Error()))
				return err
			}

			fmt.Println(styleSuccess.Render(message))
			return nil
		},
	}
}
