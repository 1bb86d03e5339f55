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

// Package script renders job descriptions for the batch system.
package script

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/carv-ics-forth/batchq/compute/request"
	"github.com/pkg/errors"
)

// Dialect is the part of the job description that depends on the batch system.
type Dialect interface {
	// Name of the batch system, e.g., "pbs".
	Name() string

	// Template is the default job description template.
	Template() string

	// ResourceList encodes the resources in the syntax of the batch system.
	ResourceList(res request.Resources, node string) string

	// MailOptions returns the notification mode for the given address. An empty address disables mail.
	MailOptions(email string) string
}

// Renderer turns requests into job descriptions. Rendering has no side effects.
type Renderer struct {
	dialect   Dialect
	tmpl      *template.Template
	outputDir string
}

// NewRenderer parses the dialect template, or custom when it is not empty.
func NewRenderer(dialect Dialect, custom string, outputDir string) (*Renderer, error) {
	text := dialect.Template()
	if custom != "" {
		text = custom
	}

	tmpl, err := ParseTemplate(text)
	if err != nil {
		return nil, compute.TemplateRenderError(err, "cannot parse %s job template", dialect.Name())
	}

	return &Renderer{
		dialect:   dialect,
		tmpl:      tmpl,
		outputDir: outputDir,
	}, nil
}

// Render produces the job description. Identical requests and environments give identical output.
func (r *Renderer) Render(req request.Request, env compute.HostEnvironment) (string, error) {
	if strings.TrimSpace(req.Command) == "" {
		return "", compute.TemplateRenderError(errors.New("command is empty"), "cannot render job")
	}

	resources := r.dialect.ResourceList(req.Resources, req.Node)
	if strings.TrimSpace(resources) == "" {
		return "", compute.TemplateRenderError(errors.New("resource list is empty"), "cannot render job")
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = env.WorkDir
	}

	/*---------------------------------------------------
	 * Bind every placeholder
	 *---------------------------------------------------*/
	fields := map[string]interface{}{
		"OutputDir":   r.outputDir,
		"Resources":   resources,
		"Walltime":    req.Resources.Clock(),
		"Memory":      req.Resources.MemoryMB,
		"CPU":         req.Resources.CPU,
		"Node":        req.Node,
		"MailOptions": r.dialect.MailOptions(req.Email),
		"Email":       req.Email,
		"JobName":     req.Name(),
		"WorkDir":     workDir,
		"Path":        env.Path,
		"SubmitHost":  env.SubmitHost,
		"User":        env.User,
		"Setup":       setup(req),
		"JobConfig":   JobConfig(req, workDir),
		"Command":     req.Command,
	}

	var out bytes.Buffer

	if err := r.tmpl.Execute(&out, fields); err != nil {
		return "", compute.TemplateRenderError(err, "cannot render %s job", r.dialect.Name())
	}

	return out.String(), nil
}

func setup(req request.Request) string {
	if req.CondaEnv == "" || req.CondaProfile == "" {
		return ""
	}

	return fmt.Sprintf("source %s\nconda activate %s", ShellQuote(req.CondaProfile), ShellQuote(req.CondaEnv))
}

// JobConfig is echoed into the job output, so that the requested resources can be
// reported next to the used ones after the job has left the queue.
func JobConfig(req request.Request, workDir string) string {
	items := []struct{ key, value string }{
		{"rwalltime", request.FormatFloat(req.Resources.Hours())},
		{"rmem", request.FormatFloat(req.Resources.MemoryGB())},
		{"rcpu", strconv.Itoa(req.Resources.CPU)},
		{"name", req.Name()},
		{"conda_environment", req.CondaEnv},
		{"wd", workDir},
	}

	parts := make([]string, 0, len(items))

	for _, item := range items {
		if item.value == "" {
			continue
		}

		parts = append(parts, item.key+"="+item.value)
	}

	return strings.Join(parts, ",")
}
