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

// Package pbs contains code for accessing compute resources via PBS/Torque.
package pbs

import (
	"fmt"
	"strings"

	"github.com/carv-ics-forth/batchq/compute/request"
)

/************************************************************

			PBS Job Description

************************************************************/

// JobTemplate is handed to qsub on stdin.
// Lines starting with #PBS are directives. The "==>" lines are parsed back by jobstatus.
var JobTemplate = `#!/bin/bash
#PBS -S /bin/bash
#PBS -e localhost:{{ .OutputDir }}
#PBS -o localhost:{{ .OutputDir }}
#PBS -j oe
#PBS -l {{ .Resources }}
#PBS -m {{ .MailOptions }}
{{- if .Email }}
#PBS -M {{ .Email }}
{{- end }}
#PBS -r n
#PBS -V
#PBS -N {{ .JobName }}
cd {{ .WorkDir | param }}
export PATH={{ .Path | param }}
export PBS_NCPU={{ .CPU }}
{{- if .Setup }}
{{ .Setup }}
{{- end }}
echo -E '==> Run command    :' {{ .Command | param }}
echo    '==> Execution host :' $(hostname)
echo    '==> Job config     :' {{ .JobConfig | param }}
{{ .Command }}
exitcode=$?
echo    '==> Exit status    :' $exitcode
exit $exitcode
`

// Dialect renders job descriptions for qsub.
type Dialect struct{}

func (Dialect) Name() string {
	return "pbs"
}

func (Dialect) Template() string {
	return JobTemplate
}

// ResourceList encodes the resources as "walltime=HH:MM:SS,mem=<n>mb,nodes=<node>:ppn=<cpu>".
func (Dialect) ResourceList(res request.Resources, node string) string {
	if res.Walltime <= 0 || res.MemoryMB <= 0 || res.CPU <= 0 {
		return ""
	}

	if node == "" {
		node = "1"
	}

	resources := []string{
		"walltime=" + res.Clock(),
		fmt.Sprintf("mem=%dmb", res.MemoryMB),
		fmt.Sprintf("nodes=%s:ppn=%d", node, res.CPU),
	}

	return strings.Join(resources, ",")
}

// MailOptions sends mail on abort and end, when an address is given.
func (Dialect) MailOptions(email string) string {
	if email == "" {
		return "n"
	}

	return "ae"
}
