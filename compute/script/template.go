// Copyright © 2022 FORTH-ICS
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

package script

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/alessio/shellescape"
)

// jobFuncs extends sprig with the helpers used by the PBS and Slurm job templates.
var jobFuncs = template.FuncMap{
	// param makes a placeholder safe to paste into the job script, e.g. {{ .WorkDir | param }}
	"param": ShellQuote,
}

// ParseTemplate parses a job template. Referencing a placeholder the renderer does not provide
// is an error at render time.
func ParseTemplate(text string) (*template.Template, error) {
	return template.New("job").
		Funcs(sprig.TxtFuncMap()).
		Funcs(jobFuncs).
		Option("missingkey=error").
		Parse(text)
}

// ShellQuote renders each value as one shell word and joins them with spaces. Nil values are
// dropped, so optional placeholders vanish from the command line.
func ShellQuote(values ...any) string {
	words := make([]string, 0, len(values))

	for _, v := range values {
		if v == nil {
			continue
		}

		words = append(words, shellescape.Quote(shellWord(v)))
	}

	return strings.Join(words, " ")
}

// shellWord is the text of a placeholder value before quoting.
func shellWord(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
