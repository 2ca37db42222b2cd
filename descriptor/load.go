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
	"fmt"
	"os"
	"path/filepath"

	"github.com/cowdogmoo/stratum/errors"
	"gopkg.in/yaml.v3"
)

// Descriptor kinds understood by Validator implementations.
const (
	KindImage     = "Image"
	KindModule    = "Module"
	KindOverrides = "Overrides"
)

// ModuleFileName is the file module discovery looks for.
const ModuleFileName = "module.yaml"

// Validator checks a decoded YAML tree against the rules for kind before
// it is turned into a typed descriptor.
type Validator interface {
	Validate(kind string, doc any) error
}

func validatorOrDefault(v Validator) Validator {
	if v == nil {
		return DefaultValidator()
	}
	return v
}

// LoadImages reads an image descriptor file. The file holds either one
// image or a list of images; in a list every entry but the last is a
// builder image of the last one.
func LoadImages(path string, v Validator) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read image descriptor", path, err)
	}
	img, err := ParseImages(data, v)
	if err != nil {
		return nil, errors.Wrap("load image descriptor", path, err)
	}
	return img, nil
}

// ParseImages is LoadImages for in-memory content.
func ParseImages(data []byte, v Validator) (*Image, error) {
	root, err := parseRoot(data)
	if err != nil {
		return nil, err
	}

	nodes := []*yaml.Node{root}
	if root.Kind == yaml.SequenceNode {
		nodes = root.Content
	}
	if len(nodes) == 0 {
		return nil, errors.NewValidation(KindImage, "descriptor list is empty")
	}

	images := make([]*Image, 0, len(nodes))
	for _, n := range nodes {
		img := &Image{}
		if err := decodeNode(n, KindImage, validatorOrDefault(v), img); err != nil {
			return nil, err
		}
		if err := img.Normalize(); err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	last := images[len(images)-1]
	last.Builders = append(images[:len(images)-1:len(images)-1], last.Builders...)
	return last, nil
}

// LoadModule reads a module.yaml and records its directory.
func LoadModule(path string, v Validator) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read module descriptor", path, err)
	}

	root, err := parseRoot(data)
	if err != nil {
		return nil, errors.Wrap("load module descriptor", path, err)
	}

	m := &Module{}
	if err := decodeNode(root, KindModule, validatorOrDefault(v), m); err != nil {
		return nil, errors.Wrap("load module descriptor", path, err)
	}
	if err := m.Normalize(); err != nil {
		return nil, errors.Wrap("load module descriptor", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap("resolve module directory", path, err)
	}
	m.Dir = abs
	return m, nil
}

// ParseOverride reads an override descriptor. s is a path when a file
// exists there, otherwise inline YAML or JSON.
func ParseOverride(s string, v Validator) (*Image, error) {
	data := []byte(s)
	source := "inline override"
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		if data, err = os.ReadFile(s); err != nil {
			return nil, errors.Wrap("read override", s, err)
		}
		source = s
	}

	root, err := parseRoot(data)
	if err != nil {
		return nil, errors.Wrap("load override", source, err)
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.Wrap("load override", source,
			errors.NewValidation(KindOverrides, "override must be a mapping"))
	}

	o := &Image{}
	if err := decodeNode(root, KindOverrides, validatorOrDefault(v), o); err != nil {
		return nil, errors.Wrap("load override", source, err)
	}
	if err := o.Normalize(); err != nil {
		return nil, errors.Wrap("load override", source, err)
	}
	return o, nil
}

func parseRoot(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewValidation("Descriptor", "document is empty")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewValidation("Descriptor", err.Error())
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.NewValidation("Descriptor", "document is empty")
	}
	return doc.Content[0], nil
}

// decodeNode validates n as kind and decodes it into out. Schema problems
// are reported before any decode error.
func decodeNode(n *yaml.Node, kind string, v Validator, out any) error {
	var tree any
	if err := n.Decode(&tree); err != nil {
		return errors.NewValidation(kind, err.Error())
	}
	if err := v.Validate(kind, tree); err != nil {
		return err
	}
	if err := n.Decode(out); err != nil {
		return errors.NewValidation(kind, err.Error())
	}
	return nil
}

// ToMap renders a descriptor as the plain nested mapping handed to
// templates.
func ToMap(d any) (map[string]any, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, errors.Wrap("encode descriptor", fmt.Sprintf("%T", d), err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap("decode descriptor", fmt.Sprintf("%T", d), err)
	}
	return out, nil
}

// Marshal renders a descriptor as YAML.
func Marshal(d any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrap("encode descriptor", fmt.Sprintf("%T", d), err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
