package scenario

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"
)

// Schema reflects the JSON schema for scenario documents.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&Scenario{})
	schema.Title = "Flow field scenario"
	schema.Description = "Square grid map with start, goal and layered obstacles. Layers apply as maze, image, layout, rects, obstacles, clear."
	return schema
}

// WriteSchema writes the indented schema followed by a newline.
func WriteSchema(w io.Writer) error {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}
