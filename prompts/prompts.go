// Copyright 2025 Poiesic Systems
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

// Package prompts loads the prompt templates used by the RAG engine.
//
// Templates are plain text files named <name>.txt. Placeholders take the form
// {{key}} and are replaced verbatim; unknown placeholders are left untouched.
// All templates are read once at startup, so a missing file fails construction
// instead of the first question.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// Template names.
const (
	Answer  = "answer"
	Summary = "summary"
)

// Placeholder keys.
const (
	KeyContext      = "context"
	KeyQuestion     = "question"
	KeyConversation = "conversation"
)

//go:embed templates/*.txt
var defaults embed.FS

// Required lists the templates every Cache must hold.
var Required = []string{Answer, Summary}

// Cache holds loaded templates keyed by name. It is read-only after Load.
type Cache struct {
	templates map[string]string
}

// Default returns a Cache over the templates compiled into the binary.
func Default() (*Cache, error) {
	sub, err := fs.Sub(defaults, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads templates from a directory on disk.
func LoadDir(dir string) (*Cache, error) {
	return Load(os.DirFS(dir))
}

// Load reads every required template from the root of fsys.
func Load(fsys fs.FS, names ...string) (*Cache, error) {
	if len(names) == 0 {
		names = Required
	}
	c := &Cache{templates: make(map[string]string, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Clean(name+".txt"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, name)
		}
		c.templates[name] = text
	}
	return c, nil
}

// Get returns the raw template text.
func (c *Cache) Get(name string) (string, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Render substitutes vars into the named template.
func (c *Cache) Render(name string, vars map[string]string) (string, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(t), nil
}
