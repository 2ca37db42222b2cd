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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/cowdogmoo/stratum/builder"
	"github.com/cowdogmoo/stratum/cache"
)

// Output formats accepted by NewOutputFormatter.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatTable = "table"
)

// OutputFormatter prints command results in the selected format.
type OutputFormatter struct {
	format string
	w      io.Writer
}

// NewOutputFormatter creates a formatter writing to stdout. Unknown
// formats fall back to text.
func NewOutputFormatter(format string) *OutputFormatter {
	return NewOutputFormatterTo(format, os.Stdout)
}

// NewOutputFormatterTo creates a formatter writing to w.
func NewOutputFormatterTo(format string, w io.Writer) *OutputFormatter {
	switch format {
	case FormatJSON, FormatTable:
	default:
		format = FormatText
	}
	return &OutputFormatter{format: format, w: w}
}

// DisplayCacheEntries prints the cache index sorted by entry id.
func (f *OutputFormatter) DisplayCacheEntries(entries map[string]cache.Entry) error {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	switch f.format {
	case FormatJSON:
		list := make([]cache.Entry, 0, len(ids))
		for _, id := range ids {
			list = append(list, entries[id])
		}
		return f.json(list)
	case FormatTable:
		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			e := entries[id]
			rows = append(rows, []string{id, strings.Join(e.Names, ", "), formatChecksums(e.Checksums)})
		}
		f.table([]string{"id", "names", "checksums"}, rows)
		return nil
	}

	if len(ids) == 0 {
		_, err := fmt.Fprintln(f.w, "No artifacts cached")
		return err
	}
	for _, id := range ids {
		e := entries[id]
		if _, err := fmt.Fprintf(f.w, "%s:\n  names: %s\n", id, strings.Join(e.Names, ", ")); err != nil {
			return err
		}
		for _, alg := range sortedKeys(e.Checksums) {
			if _, err := fmt.Fprintf(f.w, "  %s: %s\n", alg, e.Checksums[alg]); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisplayVerifyResults prints one line per verified entry.
func (f *OutputFormatter) DisplayVerifyResults(results []cache.VerifyResult) error {
	if f.format == FormatJSON {
		type row struct {
			cache.VerifyResult
			Error string `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(results))
		for _, r := range results {
			rw := row{VerifyResult: r}
			if r.Err != nil {
				rw.Error = r.Err.Error()
			}
			rows = append(rows, rw)
		}
		return f.json(rows)
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows = append(rows, []string{r.ID, strings.Join(r.Names, ", "), status})
	}
	if f.format == FormatTable {
		f.table([]string{"id", "names", "status"}, rows)
		return nil
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(f.w, "%s (%s): %s\n", r[0], r[1], r[2]); err != nil {
			return err
		}
	}
	return nil
}

// DisplayBuildManifest summarizes a build.
func (f *OutputFormatter) DisplayBuildManifest(m *builder.BuildManifest) error {
	if f.format == FormatJSON {
		return f.json(m)
	}

	rows := [][]string{{"image", m.Image + ":" + m.Version}}
	if m.DryRun {
		rows = append(rows, []string{"dry run", "true"})
	} else {
		rows = append(rows, []string{"engine", m.Engine}, []string{"duration", m.Duration})
	}
	if len(m.Tags) > 0 {
		rows = append(rows, []string{"tags", strings.Join(m.Tags, ", ")})
	}
	if m.ImageID != "" {
		rows = append(rows, []string{"image id", m.ImageID})
	}
	if m.Commit != "" {
		rows = append(rows, []string{"commit", m.Commit})
	}
	if len(m.Modules) > 0 {
		mods := make([]string, 0, len(m.Modules))
		for _, mod := range m.Modules {
			mods = append(mods, mod.Name+":"+mod.Version)
		}
		rows = append(rows, []string{"modules", strings.Join(mods, ", ")})
	}

	if f.format == FormatTable {
		f.table([]string{"field", "value"}, rows)
		return nil
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(f.w, "%s: %s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

func (f *OutputFormatter) json(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(f.w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

func formatChecksums(sums map[string]string) string {
	parts := make([]string, 0, len(sums))
	for _, alg := range sortedKeys(sums) {
		parts = append(parts, alg+":"+sums[alg])
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
