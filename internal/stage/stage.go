// Package stage adapts the inference client to an image-processing host
// that pulls output one scanline range at a time. The host never sees the
// protocol: it validates, asks for rows, and edits named fields.
package stage

import (
	"context"
	"fmt"

	"github.com/fxbridge/mlclient/internal/client"
	"github.com/fxbridge/mlclient/internal/conn"
	"github.com/fxbridge/mlclient/internal/logx"
	"github.com/fxbridge/mlclient/internal/raster"
	"github.com/fxbridge/mlclient/internal/wire"
)

// Host is what the adapter needs from the surrounding application: the
// connected inputs and their rasters for the current frame.
type Host interface {
	InputCount() int
	Input(i int) (raster.Image, error)
}

// Renderer is the client surface the adapter drives. *client.Client
// implements it.
type Renderer interface {
	Render(ctx context.Context, images []raster.Image) (raster.Image, error)
	LastResult() (raster.Image, bool)
	FetchModels(ctx context.Context) ([]wire.ModelInfo, error)
	Models() []wire.ModelInfo
	SelectModel(index int) error
	SelectModelByName(name string) error
	SelectedIndex() int
	SelectedModel() (wire.ModelInfo, bool)
	SetEndpoint(host string, port int)
	Endpoint() (string, int)
	SetOption(name string, v any) error
	OptionViews() []client.OptionView
}

// Stage is the compute surface the host drives: check the configuration,
// ask for the output extent, then pull rows.
type Stage interface {
	Validate() error
	OutputExtent() (w, h, c int, err error)
	ComputeRow(ctx context.Context, y int, out []float32) error
}

// Adapter translates host calls into client calls. Row requests are served
// from the client's cached result; inference runs only when the observed
// state changed since the last successful run.
type Adapter struct {
	r    Renderer
	host Host
}

var _ Stage = (*Adapter)(nil)

func NewAdapter(r Renderer, h Host) *Adapter {
	return &Adapter{r: r, host: h}
}

// Validate checks everything that must hold before any row can be computed:
// a plausible endpoint, a selected model, and an input count matching the
// model's declaration. It performs no I/O.
func (a *Adapter) Validate() error {
	host, port := a.r.Endpoint()
	if err := conn.ValidateEndpoint(host, port); err != nil {
		return err
	}
	m, ok := a.r.SelectedModel()
	if !ok {
		return client.ErrNoModel
	}
	if a.host.InputCount() != m.InputCount {
		return fmt.Errorf("%w: host supplies %d inputs, model %q declares %d",
			client.ErrInputMismatch, a.host.InputCount(), m.Name, m.InputCount)
	}
	return nil
}

// OutputExtent reports the dimensions rows will be served at: the cached
// result if one exists, otherwise the first input (passthrough dimensions).
func (a *Adapter) OutputExtent() (w, h, c int, err error) {
	if res, ok := a.r.LastResult(); ok {
		return res.Width, res.Height, res.Channels, nil
	}
	if a.host.InputCount() > 0 {
		in, err := a.host.Input(0)
		if err != nil {
			return 0, 0, 0, err
		}
		return in.Width, in.Height, in.Channels, nil
	}
	return 0, 0, 0, client.ErrNoModel
}

// ComputeRow fills out with scanline y of the processed result, running
// inference if the frame state changed. On failure the row is still fully
// written — from the previous result if one exists, else from the first
// input, else zeros — and the error is returned so the host can report it.
func (a *Adapter) ComputeRow(ctx context.Context, y int, out []float32) error {
	inputs, gatherErr := a.gatherInputs()
	if gatherErr == nil {
		res, err := a.r.Render(ctx, inputs)
		if err == nil {
			copyRow(out, res, y)
			return nil
		}
		gatherErr = err
	}

	if res, ok := a.r.LastResult(); ok {
		copyRow(out, res, y)
	} else if len(inputs) > 0 {
		copyRow(out, inputs[0], y)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
	logx.Log.Warn().Int("row", y).Err(gatherErr).Msg("serving fallback row")
	return gatherErr
}

func (a *Adapter) gatherInputs() ([]raster.Image, error) {
	n := a.host.InputCount()
	inputs := make([]raster.Image, 0, n)
	for i := 0; i < n; i++ {
		im, err := a.host.Input(i)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		inputs = append(inputs, im)
	}
	return inputs, nil
}

// copyRow never panics: a raster whose pixel buffer disagrees with its
// declared dimensions, or a row outside it, yields zeros. Fallback rasters
// come from the host and are not guaranteed consistent.
func copyRow(out []float32, im raster.Image, y int) {
	if !im.Valid() || y < 0 || y >= im.Height {
		for i := range out {
			out[i] = 0
		}
		return
	}
	row := im.Row(y)
	n := copy(out, row)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}
