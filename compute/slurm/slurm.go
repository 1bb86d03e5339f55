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

// Package slurm contains code for accessing compute resources via Slurm.
package slurm

import (
	"fmt"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute/request"
)

/************************************************************

			Slurm Job Description

************************************************************/

// JobTemplate is handed to sbatch on stdin.
// The output file is named <name>.o<jobid>, the same as with PBS, so that jobstatus finds it.
var JobTemplate = `#!/bin/bash
#SBATCH --job-name={{ .JobName }}
#SBATCH --output={{ .OutputDir }}/%x.o%j
{{- range splitList " " .Resources }}
#SBATCH {{ . }}
{{- end }}
#SBATCH --mail-type={{ .MailOptions }}
{{- if .Email }}
#SBATCH --mail-user={{ .Email }}
{{- end }}
#SBATCH --no-requeue
#SBATCH --export=ALL
cd {{ .WorkDir | param }}
export PATH={{ .Path | param }}
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

// Dialect renders job descriptions for sbatch.
type Dialect struct{}

func (Dialect) Name() string {
	return "slurm"
}

func (Dialect) Template() string {
	return JobTemplate
}

// ResourceList encodes the resources as space-separated sbatch options.
func (Dialect) ResourceList(res request.Resources, node string) string {
	if res.Walltime <= 0 || res.MemoryMB <= 0 || res.CPU <= 0 {
		return ""
	}

	resources := []string{
		"--time=" + FormatTime(res.Walltime),
		fmt.Sprintf("--mem=%dM", res.MemoryMB),
		fmt.Sprintf("--cpus-per-task=%d", res.CPU),
		"--nodes=1",
	}

	// "1" is the PBS way of saying any node.
	if node != "" && node != "1" {
		resources = append(resources, "--nodelist="+node)
	}

	return strings.Join(resources, " ")
}

// MailOptions sends mail on end and failure, when an address is given.
func (Dialect) MailOptions(email string) string {
	if email == "" {
		return "NONE"
	}

	return "END,FAIL"
}

// FormatTime prints a duration as D-HH:MM:SS, or HH:MM:SS below one day.
func FormatTime(d time.Duration) string {
	total := int64(d / time.Second)

	days := total / 86400
	total %= 86400

	clock := fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	if days == 0 {
		return clock
	}

	return fmt.Sprintf("%d-%s", days, clock)
}
