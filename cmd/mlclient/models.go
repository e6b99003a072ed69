package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fxbridge/mlclient/internal/config"
	"github.com/fxbridge/mlclient/internal/logx"
	"github.com/fxbridge/mlclient/internal/reconnect"
	"github.com/fxbridge/mlclient/internal/wire"
)

func buildModelsCmd(cfg *config.ClientConfig) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models advertised by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(cfg)
			defer c.Close()

			ctx := cmd.Context()
			models, err := c.FetchModels(ctx)
			for attempt := 0; err != nil && wait; attempt++ {
				delay := reconnect.Delay(attempt)
				logx.Log.Warn().Dur("backoff", delay).Err(err).Msg("server unreachable; retrying")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
				models, err = c.FetchModels(ctx)
			}
			if err != nil {
				return err
			}
			printModels(models)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "retry with backoff until the server responds")
	return cmd
}

func printModels(models []wire.ModelInfo) {
	if len(models) == 0 {
		fmt.Println("server advertises no models")
		return
	}
	for i, m := range models {
		fmt.Printf("%d: %s (inputs: %d", i, m.Name, m.InputCount)
		for _, n := range m.InputNames {
			fmt.Printf(" %s", n)
		}
		fmt.Println(")")
		for _, p := range m.Params {
			fmt.Printf("   %-10s %-6s default=%v\n", p.Name, p.Type, paramDefault(p))
		}
	}
}

func paramDefault(p wire.Param) any {
	switch p.Type {
	case wire.ParamBool:
		return p.BoolDefault
	case wire.ParamInt:
		return p.IntDefault
	case wire.ParamFloat:
		return p.FloatDefault
	default:
		return p.StringDefault
	}
}
