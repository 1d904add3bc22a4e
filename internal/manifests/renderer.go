package manifests

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"
)

//go:embed templates/*.yaml.tmpl
var templatesFS embed.FS

// Template names.
const (
	Cluster         = "cluster"
	VirtualMachine  = "virtualmachine"
	UserData        = "user-data"
	NetworkData     = "network-data"
	CloudInitSecret = "cloudinit-secret"
)

const templateSuffix = ".yaml.tmpl"

// Renderer renders named templates. It holds no state besides where
// templates are read from, so it is safe for concurrent use.
type Renderer struct {
	override fs.FS
}

// NewRenderer returns a Renderer that reads templates from dir first and
// falls back to the embedded templates. An empty dir uses only the embedded
// templates.
func NewRenderer(dir string) *Renderer {
	r := &Renderer{}
	if dir != "" {
		r.override = os.DirFS(dir)
	}
	return r
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	content, err := r.load(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Funcs(FuncMap()).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) load(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	file := name + templateSuffix

	if r.override != nil {
		content, err := fs.ReadFile(r.override, file)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template %s: %w", file, err)
		}
	}

	content, err := templatesFS.ReadFile("templates/" + file)
	if err != nil {
		return nil, fmt.Errorf("unknown template %s: %w", name, err)
	}
	return content, nil
}

// FuncMap returns the functions available to templates: sprig plus the
// toYaml, toJson and b64encode filters.
func FuncMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["toYaml"] = ToYAML
	funcs["toJson"] = ToJSON
	funcs["b64encode"] = B64Encode
	return funcs
}

// ToYAML serializes v as YAML.
func ToYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toYaml: %w", err)
	}
	return string(out), nil
}

// ToJSON serializes v as compact JSON.
func ToJSON(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toJson: %w", err)
	}
	return string(out), nil
}

// B64Encode base64-encodes the UTF-8 bytes of s.
func B64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
