package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/filter"
	"github.com/Iron-Ham/mergepipe/internal/pipeline"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// DocumentEnv names the environment variable that points at a pipeline
// document.
const DocumentEnv = "MERGEPIPE_PIPELINE"

// DocumentNames are the file names searched for in the working directory and
// then in the home directory.
var DocumentNames = []string{
	".gitmergepipeline.json",
	".gitmergepipeline.yaml",
	".gitmergepipeline.yml",
}

// FindDocument locates the pipeline document. An explicit path must exist.
// Otherwise DocumentEnv is consulted, then the working directory, then the
// home directory. It returns "" when no document exists anywhere.
func FindDocument(explicit string) (string, error) {
	if explicit != "" {
		if !isRegularFile(explicit) {
			return "", errors.NewConfigError("pipeline document not found", os.ErrNotExist).WithSource(explicit)
		}
		return explicit, nil
	}

	if env := os.Getenv(DocumentEnv); env != "" && isRegularFile(env) {
		return env, nil
	}

	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	for _, dir := range dirs {
		for _, name := range DocumentNames {
			candidate := filepath.Join(dir, name)
			if isRegularFile(candidate) {
				return candidate, nil
			}
		}
	}
	return "", nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// LoadDocument reads the pipeline document at path. An empty path yields an
// empty configuration. Format follows the extension; files without a known
// extension are read as JSON.
func LoadDocument(path string) (*pipeline.Configuration, error) {
	if path == "" {
		return pipeline.NewConfiguration(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError("failed to read pipeline document", err).WithSource(path)
	}

	cfg, err := DecodeDocument(v.AllSettings())
	if err != nil {
		return nil, errors.NewConfigError("invalid pipeline document", err).WithSource(path)
	}
	return cfg, nil
}

// document is the raw shape of a pipeline document. Rules, filters and
// pipelines stay generic until their type tag is known.
type document struct {
	DetectRenames *bool            `mapstructure:"detectRenames"`
	Filters       []map[string]any `mapstructure:"filters"`
	Rules         map[string]any   `mapstructure:"rules"`
	Pipelines     []map[string]any `mapstructure:"pipelines"`
}

type filePatternDoc struct {
	Pattern       string `mapstructure:"pattern"`
	IsRegex       bool   `mapstructure:"isRegex"`
	CaseSensitive bool   `mapstructure:"caseSensitive"`
}

type fileExtensionDoc struct {
	Extensions []string `mapstructure:"extensions"`
	Invert     bool     `mapstructure:"invert"`
}

type contentPatternDoc struct {
	Pattern       string `mapstructure:"pattern"`
	CaseSensitive bool   `mapstructure:"caseSensitive"`
	CheckBase     *bool  `mapstructure:"checkBase"`
	CheckCurrent  *bool  `mapstructure:"checkCurrent"`
	CheckOther    *bool  `mapstructure:"checkOther"`
}

type mimeTypeDoc struct {
	MimeType string `mapstructure:"mimeType"`
}

type compositeDoc struct {
	Operation string `mapstructure:"operation"`
	Rules     []any  `mapstructure:"rules"`
}

type refDoc struct {
	Name string `mapstructure:"name"`
}

type stepDoc struct {
	Rule       map[string]any `mapstructure:"rule"`
	Operation  string         `mapstructure:"operation"`
	Parameters []string       `mapstructure:"parameters"`
}

type stepsDoc struct {
	Name  string    `mapstructure:"name"`
	Steps []stepDoc `mapstructure:"steps"`
}

type branchDoc struct {
	Rule     map[string]any `mapstructure:"rule"`
	Pipeline map[string]any `mapstructure:"pipeline"`
}

type conditionalDoc struct {
	Name            string         `mapstructure:"name"`
	Branches        []branchDoc    `mapstructure:"branches"`
	DefaultPipeline map[string]any `mapstructure:"defaultPipeline"`
}

type fileModeDoc struct {
	Mode string `mapstructure:"mode"`
}

type gitignoreDoc struct {
	Patterns []string `mapstructure:"patterns"`
}

type orDoc struct {
	Filters []any `mapstructure:"filters"`
}

type notDoc struct {
	Filter map[string]any `mapstructure:"filter"`
}

// DecodeDocument builds a configuration from a decoded document tree, as
// produced by a JSON or YAML parser.
func DecodeDocument(raw map[string]any) (*pipeline.Configuration, error) {
	var doc document
	if err := decode(raw, &doc); err != nil {
		return nil, err
	}

	d := &decoder{
		named:    make(map[string]any, len(doc.Rules)),
		resolved: make(map[string]rule.Rule, len(doc.Rules)),
		active:   make(map[string]bool),
	}
	// Keys may have been case-folded by the reader; refs match either way.
	for name, node := range doc.Rules {
		d.named[strings.ToLower(name)] = node
	}

	cfg := pipeline.NewConfiguration()
	if doc.DetectRenames != nil {
		cfg.DetectRenames = *doc.DetectRenames
	}

	for name := range doc.Rules {
		r, err := d.namedRule(name, "rules."+name)
		if err != nil {
			return nil, err
		}
		cfg.Rules[name] = r
	}

	for i, node := range doc.Filters {
		f, err := d.filter(node, fmt.Sprintf("filters[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.Filters = append(cfg.Filters, f)
	}

	for i, node := range doc.Pipelines {
		p, err := d.pipeline(node, fmt.Sprintf("pipelines[%d]", i))
		if err != nil {
			return nil, err
		}
		cfg.Pipelines = append(cfg.Pipelines, p)
	}
	return cfg, nil
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

type decoder struct {
	named    map[string]any
	resolved map[string]rule.Rule
	active   map[string]bool
}

func invalid(field, message string, value any) error {
	return errors.NewValidationError(message).WithField(field).WithValue(value)
}

// typeOf returns the type tag of node, lower-cased.
func typeOf(node map[string]any, field string) (string, error) {
	for k, v := range node {
		if strings.EqualFold(k, "type") {
			s, ok := v.(string)
			if !ok || s == "" {
				break
			}
			return strings.ToLower(s), nil
		}
	}
	return "", invalid(field+".type", "missing type", nil)
}

func asNode(v any, field string) (map[string]any, error) {
	switch n := v.(type) {
	case map[string]any:
		return n, nil
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, invalid(field, "expected an object", v)
	}
}

func (d *decoder) namedRule(name, field string) (rule.Rule, error) {
	key := strings.ToLower(name)
	if r, ok := d.resolved[key]; ok {
		return r, nil
	}
	raw, ok := d.named[key]
	if !ok {
		return nil, invalid(field, "unknown rule reference", name)
	}
	if d.active[key] {
		return nil, invalid(field, "rule reference cycle", name)
	}
	d.active[key] = true
	defer delete(d.active, key)

	node, err := asNode(raw, field)
	if err != nil {
		return nil, err
	}
	r, err := d.rule(node, field)
	if err != nil {
		return nil, err
	}
	d.resolved[key] = r
	return r, nil
}

func (d *decoder) rule(node map[string]any, field string) (rule.Rule, error) {
	kind, err := typeOf(node, field)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "filepattern":
		var s filePatternDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return rule.NewFilePattern(s.Pattern, s.IsRegex, s.CaseSensitive)

	case "fileextension":
		var s fileExtensionDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return rule.NewFileExtension(s.Extensions, s.Invert), nil

	case "contentpattern":
		var s contentPatternDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return rule.NewContentPattern(s.Pattern, s.CaseSensitive,
			orTrue(s.CheckBase), orTrue(s.CheckCurrent), orTrue(s.CheckOther))

	case "mimetype":
		var s mimeTypeDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		if s.MimeType == "" {
			return nil, invalid(field+".mimeType", "must not be empty", s.MimeType)
		}
		return rule.NewMimeType(s.MimeType), nil

	case "composite":
		var s compositeDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		op, err := rule.ParseOperator(s.Operation)
		if err != nil {
			return nil, err
		}
		children := make([]rule.Rule, 0, len(s.Rules))
		for i, raw := range s.Rules {
			childField := fmt.Sprintf("%s.rules[%d]", field, i)
			child, err := asNode(raw, childField)
			if err != nil {
				return nil, err
			}
			r, err := d.rule(child, childField)
			if err != nil {
				return nil, err
			}
			children = append(children, r)
		}
		return rule.NewComposite(op, children...)

	case "ref":
		var s refDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return d.namedRule(s.Name, field+".name")

	default:
		return nil, invalid(field+".type", "unknown rule type", kind)
	}
}

func orTrue(b *bool) bool {
	return b == nil || *b
}

func (d *decoder) optionalRule(node map[string]any, field string) (rule.Rule, error) {
	if node == nil {
		return nil, nil
	}
	return d.rule(node, field)
}

func (d *decoder) pipeline(node map[string]any, field string) (pipeline.Pipeline, error) {
	kind, err := typeOf(node, field)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "standard", "fallback":
		var s stepsDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		steps := make([]pipeline.Step, 0, len(s.Steps))
		for i, st := range s.Steps {
			r, err := d.optionalRule(st.Rule, fmt.Sprintf("%s.steps[%d].rule", field, i))
			if err != nil {
				return nil, err
			}
			steps = append(steps, pipeline.Step{Rule: r, Operation: st.Operation, Params: st.Parameters})
		}
		if kind == "standard" {
			return pipeline.NewStandard(s.Name, steps)
		}
		return pipeline.NewFallback(s.Name, steps)

	case "conditional":
		var s conditionalDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		branches := make([]pipeline.Branch, 0, len(s.Branches))
		for i, b := range s.Branches {
			branchField := fmt.Sprintf("%s.branches[%d]", field, i)
			if b.Rule == nil {
				return nil, invalid(branchField+".rule", "branch requires a rule", nil)
			}
			if b.Pipeline == nil {
				return nil, invalid(branchField+".pipeline", "branch requires a pipeline", nil)
			}
			r, err := d.rule(b.Rule, branchField+".rule")
			if err != nil {
				return nil, err
			}
			p, err := d.pipeline(b.Pipeline, branchField+".pipeline")
			if err != nil {
				return nil, err
			}
			branches = append(branches, pipeline.Branch{Rule: r, Pipeline: p})
		}
		var def pipeline.Pipeline
		if s.DefaultPipeline != nil {
			def, err = d.pipeline(s.DefaultPipeline, field+".defaultPipeline")
			if err != nil {
				return nil, err
			}
		}
		return pipeline.NewConditional(s.Name, branches, def)

	default:
		return nil, invalid(field+".type", "unknown pipeline type", kind)
	}
}

func (d *decoder) filter(node map[string]any, field string) (filter.Filter, error) {
	kind, err := typeOf(node, field)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "filepattern":
		var s filePatternDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return filter.NewPattern(s.Pattern, s.IsRegex, s.CaseSensitive)

	case "mimetype":
		var s mimeTypeDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		if s.MimeType == "" {
			return nil, invalid(field+".mimeType", "must not be empty", s.MimeType)
		}
		return filter.NewMimeType(s.MimeType), nil

	case "filemode":
		var s fileModeDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return filter.NewFileMode(s.Mode)

	case "gitignore":
		var s gitignoreDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		return filter.NewGitignore(s.Patterns), nil

	case "or":
		var s orDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		or := &filter.Or{}
		for i, raw := range s.Filters {
			childField := fmt.Sprintf("%s.filters[%d]", field, i)
			child, err := asNode(raw, childField)
			if err != nil {
				return nil, err
			}
			f, err := d.filter(child, childField)
			if err != nil {
				return nil, err
			}
			or.Filters = append(or.Filters, f)
		}
		return or, nil

	case "not":
		var s notDoc
		if err := decode(node, &s); err != nil {
			return nil, errors.Wrapf(err, "%s", field)
		}
		if s.Filter == nil {
			return nil, invalid(field+".filter", "not requires a filter", nil)
		}
		f, err := d.filter(s.Filter, field+".filter")
		if err != nil {
			return nil, err
		}
		return &filter.Not{Filter: f}, nil

	default:
		return nil, invalid(field+".type", "unknown filter type", kind)
	}
}
