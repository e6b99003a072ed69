package stage

import (
	"context"
	"fmt"

	"github.com/fxbridge/mlclient/internal/wire"
)

// FieldType enumerates the control kinds the adapter reports to the host.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldEnum   FieldType = "enum"
)

// Field describes one host-editable control: connection parameters, the
// model selector, and the selected model's dynamic options. The host renders
// these however it likes and reports edits through SetField.
type Field struct {
	Name    string
	Type    FieldType
	Value   any
	Choices []string // populated for FieldEnum
}

// Fields lists the current controls. The set changes when the model list or
// the selection changes; the host diffs successive calls to add and remove
// widgets.
func (a *Adapter) Fields() []Field {
	host, port := a.r.Endpoint()
	models := a.r.Models()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	fields := []Field{
		{Name: "host", Type: FieldString, Value: host},
		{Name: "port", Type: FieldInt, Value: port},
		{Name: "model", Type: FieldEnum, Value: a.r.SelectedIndex(), Choices: names},
	}
	for _, v := range a.r.OptionViews() {
		fields = append(fields, Field{Name: v.Name, Type: paramFieldType(v.Type), Value: v.Value})
	}
	return fields
}

func paramFieldType(t wire.ParamType) FieldType {
	switch t {
	case wire.ParamBool:
		return FieldBool
	case wire.ParamInt:
		return FieldInt
	case wire.ParamFloat:
		return FieldFloat
	default:
		return FieldString
	}
}

// SetField applies a host edit. Endpoint edits drop the connection and
// refresh the model list from the new server; a model edit rebuilds the
// dynamic options; anything else is a dynamic option assignment.
func (a *Adapter) SetField(ctx context.Context, name string, value any) error {
	switch name {
	case "host":
		h, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q expects a string, got %T", name, value)
		}
		_, port := a.r.Endpoint()
		a.r.SetEndpoint(h, port)
		_, err := a.r.FetchModels(ctx)
		return err
	case "port":
		p, ok := toInt(value)
		if !ok {
			return fmt.Errorf("field %q expects an int, got %T", name, value)
		}
		host, _ := a.r.Endpoint()
		a.r.SetEndpoint(host, p)
		_, err := a.r.FetchModels(ctx)
		return err
	case "model":
		switch v := value.(type) {
		case string:
			return a.r.SelectModelByName(v)
		default:
			i, ok := toInt(value)
			if !ok {
				return fmt.Errorf("field %q expects an index or name, got %T", name, v)
			}
			return a.r.SelectModel(i)
		}
	default:
		return a.r.SetOption(name, value)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
