package prompt

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/teranos/featsmith/errors"
)

//go:embed templates/*.md
var embedded embed.FS

// Prompt names shipped with featsmith
const (
	NameSystem   = "system"
	NameGenerate = "generate"
	NameFix      = "fix"
)

// Prompt is a parsed document ready to render
type Prompt struct {
	Name     string
	Doc      *Document
	Template *Template
}

// Render interpolates vars into the prompt body
func (p *Prompt) Render(vars map[string]string) (string, error) {
	out, err := p.Template.Execute(vars)
	if err != nil {
		return "", errors.Wrapf(err, "render prompt %s", p.Name)
	}
	return out, nil
}

// Library holds every prompt by name
type Library struct {
	prompts map[string]*Prompt
}

// Load reads the embedded prompts, then overrides any of them with *.md
// files found in dir. An empty dir uses the embedded prompts only.
func Load(dir string) (*Library, error) {
	lib := &Library{prompts: make(map[string]*Prompt)}

	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, errors.Wrap(err, "embedded templates")
	}
	if err := lib.addFS(sub); err != nil {
		return nil, err
	}

	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, errors.MarkFileNotFound(errors.Wrapf(err, "prompt directory %s", dir))
		}
		if err := lib.addFS(os.DirFS(dir)); err != nil {
			return nil, err
		}
	}

	for _, required := range []string{NameSystem, NameGenerate, NameFix} {
		if _, ok := lib.prompts[required]; !ok {
			return nil, errors.Newf("prompt %q is missing", required)
		}
	}
	return lib, nil
}

func (l *Library) addFS(fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return errors.Wrap(err, "list prompt files")
	}

	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return errors.Wrapf(err, "read prompt %s", file)
		}
		name := strings.TrimSuffix(path.Base(file), ".md")
		p, err := parsePrompt(name, string(data))
		if err != nil {
			return err
		}
		l.prompts[name] = p
	}
	return nil
}

func parsePrompt(name, content string) (*Prompt, error) {
	doc, err := ParseFrontmatter(content)
	if err != nil {
		return nil, errors.Wrapf(err, "prompt %s", name)
	}
	tmpl, err := Parse(doc.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "prompt %s", name)
	}

	// Declared variables must match the body exactly
	if doc.Metadata.Variables != nil {
		declared := append([]string(nil), doc.Metadata.Variables...)
		sort.Strings(declared)
		used := tmpl.Placeholders()
		if strings.Join(declared, ",") != strings.Join(used, ",") {
			return nil, errors.Newf("prompt %s declares variables %v but uses %v", name, declared, used)
		}
	}

	return &Prompt{Name: name, Doc: doc, Template: tmpl}, nil
}

// Get returns the prompt called name
func (l *Library) Get(name string) (*Prompt, error) {
	p, ok := l.prompts[name]
	if !ok {
		return nil, errors.Newf("unknown prompt %q", name)
	}
	return p, nil
}

// Names lists the loaded prompt names, sorted
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.prompts))
	for n := range l.prompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// System returns the system message body
func (l *Library) System() string {
	return l.prompts[NameSystem].Doc.Body
}

// Generate renders the generation prompt for one feature
func (l *Library) Generate(feature string) (string, error) {
	if strings.TrimSpace(feature) == "" {
		return "", errors.NewInvalidRequestError("feature is empty")
	}
	return l.prompts[NameGenerate].Render(map[string]string{"feature": feature})
}

// Fix renders the repair prompt from failing code and the compiler's error text
func (l *Library) Fix(code, errorText string) (string, error) {
	return l.prompts[NameFix].Render(map[string]string{"code": code, "error": errorText})
}
