package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fxbridge/mlclient/internal/config"
	"github.com/fxbridge/mlclient/internal/logx"
	"github.com/fxbridge/mlclient/internal/raster"
	"github.com/fxbridge/mlclient/internal/wire"
)

func buildRunCmd(cfg *config.ClientConfig) *cobra.Command {
	var (
		model   string
		inputs  []string
		output  string
		setArgs []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one inference: send input image(s), write the processed image",
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = cfg.Model
			}
			if model == "" {
				return fmt.Errorf("no model given; use --model or the config file")
			}
			if len(inputs) == 0 {
				return fmt.Errorf("at least one --input image is required")
			}

			c := newClient(cfg)
			defer c.Close()
			ctx := cmd.Context()

			if _, err := c.FetchModels(ctx); err != nil {
				return err
			}
			if err := c.SelectModelByName(model); err != nil {
				return err
			}
			desc, _ := c.SelectedModel()
			for _, kv := range setArgs {
				name, val, err := parseOption(desc, kv)
				if err != nil {
					return err
				}
				if err := c.SetOption(name, val); err != nil {
					return err
				}
			}

			images := make([]raster.Image, 0, len(inputs))
			for _, path := range inputs {
				im, err := loadPNG(path)
				if err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}
				images = append(images, im)
			}

			out, err := c.RunInference(ctx, images)
			if err != nil {
				return err
			}
			if err := savePNG(output, out); err != nil {
				return fmt.Errorf("save %s: %w", output, err)
			}
			logx.Log.Info().
				Str("model", model).
				Int("width", out.Width).
				Int("height", out.Height).
				Str("output", output).
				Msg("inference complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to run (as listed by 'mlclient models')")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "input PNG image (repeat for multi-input models)")
	cmd.Flags().StringVar(&output, "output", "out.png", "output PNG path")
	cmd.Flags().StringArrayVar(&setArgs, "set", nil, "dynamic option as name=value (repeatable)")
	return cmd
}

// parseOption converts a name=value pair to the type the model declares for
// that option.
func parseOption(desc wire.ModelInfo, kv string) (string, any, error) {
	name, raw, found := strings.Cut(kv, "=")
	if !found {
		return "", nil, fmt.Errorf("option %q is not name=value", kv)
	}
	for _, p := range desc.Params {
		if p.Name != name {
			continue
		}
		switch p.Type {
		case wire.ParamBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return "", nil, fmt.Errorf("option %q: %w", name, err)
			}
			return name, v, nil
		case wire.ParamInt:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return "", nil, fmt.Errorf("option %q: %w", name, err)
			}
			return name, v, nil
		case wire.ParamFloat:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return "", nil, fmt.Errorf("option %q: %w", name, err)
			}
			return name, v, nil
		default:
			return name, raw, nil
		}
	}
	return "", nil, fmt.Errorf("model %q has no option %q", desc.Name, name)
}
