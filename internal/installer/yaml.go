package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"weft/internal/backend"
	"weft/internal/services"
)

// Reference requires a body field to name an existing definition in an
// earlier category. Empty values are allowed.
type Reference struct {
	Field    string
	Category backend.Category
}

// YAMLInstaller loads <workDir>/<category>.yaml and upserts each entry.
type YAMLInstaller struct {
	category   backend.Category
	references []Reference

	mu      sync.Mutex
	results []Result
}

// NewYAML returns an installer for category.
func NewYAML(category backend.Category, refs ...Reference) *YAMLInstaller {
	return &YAMLInstaller{category: category, references: refs}
}

func (y *YAMLInstaller) Name() string { return string(y.category) }

// Results returns the outcomes of the most recent Install.
func (y *YAMLInstaller) Results() []Result {
	y.mu.Lock()
	defer y.mu.Unlock()
	return append([]Result(nil), y.results...)
}

// entryHeader is the natural key and display name every entry carries.
type entryHeader struct {
	Key  string `validate:"required,max=200"`
	Name string `validate:"max=500"`
}

var (
	entryValidateOnce sync.Once
	entryValidate     *validator.Validate
)

func entryValidator() *validator.Validate {
	entryValidateOnce.Do(func() {
		entryValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return entryValidate
}

// Install reads the category file; a missing file installs nothing.
func (y *YAMLInstaller) Install(ctx context.Context, client backend.Client, workDir string) error {
	y.mu.Lock()
	y.results = nil
	y.mu.Unlock()

	path := filepath.Join(workDir, string(y.category)+".yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	defs, err := y.parse(data)
	if err != nil {
		return services.Wrap(services.ErrValidation, "installer", string(y.category), filepath.Base(path), err)
	}
	if err := y.checkReferences(ctx, client, defs); err != nil {
		return err
	}

	for _, def := range defs {
		outcome, err := Upsert(ctx, client, def)
		if err != nil {
			return err
		}
		y.mu.Lock()
		y.results = append(y.results, Result{Installer: y.Name(), Category: y.category, Key: def.Key, Outcome: outcome})
		y.mu.Unlock()
	}
	return nil
}

func (y *YAMLInstaller) parse(data []byte) ([]backend.Definition, error) {
	var entries []map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	seen := make(map[string]int, len(entries))
	defs := make([]backend.Definition, 0, len(entries))
	for i, entry := range entries {
		header := entryHeader{
			Key:  strings.TrimSpace(stringField(entry, "key")),
			Name: strings.TrimSpace(stringField(entry, "name")),
		}
		if err := entryValidator().Struct(header); err != nil {
			return nil, fmt.Errorf("entry %d: %s", i+1, describeEntry(err))
		}
		if first, dup := seen[header.Key]; dup {
			return nil, fmt.Errorf("entry %d: key %q duplicates entry %d", i+1, header.Key, first)
		}
		seen[header.Key] = i + 1

		body := make(map[string]any, len(entry))
		for k, v := range entry {
			if k == "key" || k == "name" {
				continue
			}
			body[k] = v
		}
		name := header.Name
		if name == "" {
			name = header.Key
		}
		defs = append(defs, backend.Definition{
			Category: y.category,
			Key:      header.Key,
			Name:     name,
			Body:     body,
		})
	}
	return defs, nil
}

func (y *YAMLInstaller) checkReferences(ctx context.Context, client backend.Definitions, defs []backend.Definition) error {
	for _, def := range defs {
		for _, ref := range y.references {
			target := strings.TrimSpace(stringField(def.Body, ref.Field))
			if target == "" {
				continue
			}
			found, err := client.FindDefinition(ctx, ref.Category, target)
			if err != nil {
				return fmt.Errorf("check %s/%s %s: %w", y.category, def.Key, ref.Field, err)
			}
			if found == nil {
				return services.Wrap(services.ErrValidation, "installer", string(y.category),
					fmt.Sprintf("%s: %s %q is not a known %s", def.Key, ref.Field, target, ref.Category), nil)
			}
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func describeEntry(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
