// Copyright © 2023 FORTH-ICS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ui formats terminal output for the command-line tools.
package ui

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dimiro1/banner"
)

// Logo renders the title in large letters.
func Logo(title string, color bool) string {
	buf := bytes.NewBuffer(nil)

	banner.InitString(buf, true, color, fmt.Sprintf(`
{{ .AnsiColor.BrightGreen }}
{{ .Title %q "" 4 }}
{{ .AnsiColor.Default }}
	`, title))

	return buf.String()
}

// Table writes rows in aligned columns under a header line.
// Rows shorter than the header are padded with empty cells. Tabs in cells become spaces.
func Table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i := 0; i < len(row) && i < len(cells); i++ {
			cells[i] = strings.ReplaceAll(row[i], "\t", " ")
		}

		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// Truncate shortens s to length runes, ending with "...".
func Truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length || length <= 3 {
		return s
	}

	return string(r[:length-3]) + "..."
}
