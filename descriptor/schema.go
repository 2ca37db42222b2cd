/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const schemaBaseURL = "https://stratum.dev/schema/"

var printer = message.NewPrinter(language.English)

// SchemaValidator validates descriptors against JSON schemas reflected
// from the descriptor types.
type SchemaValidator struct {
	schemas map[string]*validator.Schema
}

var (
	defaultValidator     *SchemaValidator
	defaultValidatorErr  error
	defaultValidatorOnce sync.Once
)

// DefaultValidator returns the shared SchemaValidator. It panics only if
// the built-in schemas fail to compile, which is a programming error.
func DefaultValidator() *SchemaValidator {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewSchemaValidator()
	})
	if defaultValidatorErr != nil {
		panic(defaultValidatorErr)
	}
	return defaultValidator
}

// NewSchemaValidator compiles the schema of every descriptor kind.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := validator.NewCompiler()
	kinds := Kinds()

	for _, kind := range kinds {
		raw, err := Schema(kind)
		if err != nil {
			return nil, err
		}
		doc, err := validator.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, errors.Wrap("decode schema", kind, err)
		}
		if err := c.AddResource(schemaURL(kind), doc); err != nil {
			return nil, errors.Wrap("register schema", kind, err)
		}
	}

	sv := &SchemaValidator{schemas: make(map[string]*validator.Schema, len(kinds))}
	for _, kind := range kinds {
		sch, err := c.Compile(schemaURL(kind))
		if err != nil {
			return nil, errors.Wrap("compile schema", kind, err)
		}
		sv.schemas[kind] = sch
	}
	return sv, nil
}

// Validate checks doc, a tree decoded from YAML, against the schema of
// kind. Violations are returned as a ValidationError naming the kind.
func (sv *SchemaValidator) Validate(kind string, doc any) error {
	sch, ok := sv.schemas[kind]
	if !ok {
		return &errors.InternalError{Msg: "no schema for descriptor kind " + kind}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.NewValidation(kind, "descriptor is not representable as JSON: "+err.Error())
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errors.NewValidation(kind, err.Error())
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}

	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return errors.NewValidation(kind, err.Error())
	}

	var problems []string
	collectProblems(ve, &problems)
	sort.Strings(problems)
	return errors.NewValidation(kind, problems...)
}

// collectProblems gathers the leaf causes, which carry the actionable
// messages.
func collectProblems(ve *validator.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collectProblems(c, out)
	}
}

// Kinds lists the descriptor kinds with a schema.
func Kinds() []string {
	return []string{KindImage, KindModule, KindOverrides}
}

// Schema returns the JSON schema of a descriptor kind.
func Schema(kind string) ([]byte, error) {
	var s *jsonschema.Schema
	switch kind {
	case KindImage:
		s = reflectSchema(&Image{})
	case KindModule:
		s = reflectSchema(&Module{})
	case KindOverrides:
		s = reflectSchema(&Image{})
		// Overrides are partial images.
		if def, ok := s.Definitions["Image"]; ok {
			def.Required = nil
		}
	default:
		return nil, errors.NewValidation("Schema", fmt.Sprintf("unknown descriptor kind %q, expected one of %s",
			kind, strings.Join(Kinds(), ", ")))
	}

	s.ID = jsonschema.ID(schemaURL(kind))
	s.Title = kind
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap("encode schema", kind, err)
	}
	return out, nil
}

func reflectSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  false,
		Anonymous:                  true,
	}
	return r.Reflect(v)
}

func schemaURL(kind string) string {
	return schemaBaseURL + strings.ToLower(kind) + ".json"
}
