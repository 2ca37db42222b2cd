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

package cli

import (
	"github.com/cowdogmoo/stratum/descriptor"
)

// LoadOverrides parses the --overrides values in order and appends the
// --label values as one final override.
func LoadOverrides(opts BuildCLIOptions, v descriptor.Validator) ([]*descriptor.Image, error) {
	var out []*descriptor.Image
	for _, o := range opts.Overrides {
		img, err := descriptor.ParseOverride(o, v)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}

	if len(opts.Labels) == 0 {
		return out, nil
	}

	labels := &descriptor.Image{}
	for _, l := range opts.Labels {
		k, val, err := ParseKeyValue(l)
		if err != nil {
			return nil, &UsageError{Msg: err.Error()}
		}
		if existing := labels.Label(k); existing != nil {
			existing.Value = descriptor.Scalar(val)
			continue
		}
		labels.Labels = append(labels.Labels, &descriptor.Label{Name: k, Value: descriptor.Scalar(val)})
	}
	return append(out, labels), nil
}
