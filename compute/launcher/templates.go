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

package launcher

import (
	"bytes"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/carv-ics-forth/pbskit/compute"
	"github.com/pkg/errors"
)

// ParseTemplate returns a custom 'text/template' enhanced with functions for processing job scripts.
func ParseTemplate(text string) (*template.Template, error) {
	return template.New("").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").Parse(text)
}

// ScriptTemplateFields are the values rendered by JobScriptTemplate.
type ScriptTemplateFields struct {
	Hashbang    string
	Directives  []string
	WorkdirEnv  string
	ProfileFile string
	Body        []string
}

/*
JobScriptTemplate provides the layout of every job script.

Remarks:

	The directives are followed by two blank lines, and the body by one blank line after
	the working directory and environment have been set. Every line ends with a newline.
*/
const JobScriptTemplate = `{{ .Hashbang }}
{{ range .Directives }}{{ . }}
{{ end }}

cd {{ .WorkdirEnv }}
{{ if .ProfileFile }}source {{ .ProfileFile }}
{{ end }}
{{ range .Body }}{{ . }}
{{ end }}`

var jobScriptTemplate = template.Must(ParseTemplate(JobScriptTemplate))

// Render returns the job script for the given job.
func Render(d Dialect, jobName string, body []string, dependency string) ([]byte, error) {
	cfg := d.Config()

	fields := ScriptTemplateFields{
		Hashbang:    cfg.HashbangLine(),
		Directives:  d.Directives(jobName, dependency),
		WorkdirEnv:  cfg.WorkdirEnv,
		ProfileFile: cfg.ProfileFile,
		Body:        body,
	}

	var script bytes.Buffer

	if err := jobScriptTemplate.Execute(&script, fields); err != nil {
		return nil, errors.Wrapf(err, "cannot render script for job '%s'", jobName)
	}

	return script.Bytes(), nil
}

// WriteJobFile creates the launch script of a job, without submitting it.
func WriteJobFile(d Dialect, scriptFile string, jobName string, body []string, dependency string) error {
	script, err := Render(d, jobName, body, dependency)
	if err != nil {
		return err
	}

	if err := os.WriteFile(scriptFile, script, compute.JobScriptPermissions); err != nil {
		return errors.Wrapf(err, "cannot write job script '%s'", scriptFile)
	}

	compute.DefaultLogger.V(1).Info("Job script has been written", "path", scriptFile)

	return nil
}
