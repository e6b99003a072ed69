package wire

// Message bodies exchanged with the inference server. Two request/response
// pairs exist; they are distinguished by shape, not by a tag in the prefix.

// ParamType enumerates the value types a model parameter may declare.
type ParamType string

const (
	ParamBool   ParamType = "bool"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
)

// Param describes one configurable parameter of a model, with the default
// the server declared for it.
type Param struct {
	Name          string    `json:"name"`
	Type          ParamType `json:"type"`
	BoolDefault   bool      `json:"bool_default,omitempty"`
	IntDefault    int       `json:"int_default,omitempty"`
	FloatDefault  float64   `json:"float_default,omitempty"`
	StringDefault string    `json:"string_default,omitempty"`
}

// ModelInfo is one entry of the server's advertised model list.
type ModelInfo struct {
	Name       string   `json:"name"`
	InputCount int      `json:"inputs"`
	InputNames []string `json:"input_names,omitempty"`
	Params     []Param  `json:"params,omitempty"`
}

// InfoRequest asks the server for its model list.
type InfoRequest struct {
	Info bool `json:"info"`
}

// InfoResponse carries the full advertised model list.
type InfoResponse struct {
	Models []ModelInfo `json:"models"`
}

// Raster is an image payload: interleaved float32 samples packed
// little-endian into Pix (base64 on the wire).
type Raster struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pix      []byte `json:"pix"`
}

// Typed option values, listed in the model's declared parameter order
// restricted to each type.

type BoolOption struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

type IntOption struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type FloatOption struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type StringOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InferenceRequest submits the input rasters and bound option values for one
// model invocation.
type InferenceRequest struct {
	Model   string         `json:"model"`
	Inputs  []Raster       `json:"inputs"`
	Bools   []BoolOption   `json:"bools,omitempty"`
	Ints    []IntOption    `json:"ints,omitempty"`
	Floats  []FloatOption  `json:"floats,omitempty"`
	Strings []StringOption `json:"strings,omitempty"`
}

// InferenceResponse carries the processed raster, or the server's account of
// why it could not process the request.
type InferenceResponse struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Output *Raster `json:"output,omitempty"`
}
